// Package policy decides what may be done to a note given its lock state.
package policy

type State string
type Action string

const (
	StateUnlocked  State = "unlocked"
	StateLocked    State = "locked"
	StateEncrypted State = "encrypted"
)

const (
	ActionRead         Action = "read"
	ActionReadMetadata Action = "read_metadata"
	ActionWrite        Action = "write"
	ActionDelete       Action = "delete"
)

// StateOf derives the state from the stored flags. Locked dominates
// encrypted, so a note that is both never exposes its content.
func StateOf(isLocked, isEncrypted bool) State {
	switch {
	case isLocked:
		return StateLocked
	case isEncrypted:
		return StateEncrypted
	default:
		return StateUnlocked
	}
}

// Can reports whether action is allowed in state. There is no transition out
// of Locked or Encrypted, so neither may be written or deleted. Encrypted
// content is ciphertext and is served as is; locked content is withheld.
func Can(state State, action Action) bool {
	switch state {
	case StateUnlocked:
		return true
	case StateEncrypted:
		return action == ActionRead || action == ActionReadMetadata
	case StateLocked:
		return action == ActionReadMetadata
	default:
		return false
	}
}

// Message is shown in place of content for notes that cannot be read.
func Message(state State) string {
	if state == StateLocked {
		return "This note is locked. Content is hidden."
	}
	return ""
}

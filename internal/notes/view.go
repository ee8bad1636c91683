package notes

import (
	"time"

	"notegeek/internal/policy"
	"notegeek/internal/store"
)

// View is the JSON shape of a note. Content is absent, and Message set, when
// the note's state does not allow reading it.
type View struct {
	ID          string    `json:"id"`
	User        string    `json:"user"`
	Title       string    `json:"title"`
	Content     *string   `json:"content,omitempty"`
	Type        string    `json:"type"`
	Tags        []string  `json:"tags"`
	IsLocked    bool      `json:"isLocked"`
	IsEncrypted bool      `json:"isEncrypted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Message     string    `json:"message,omitempty"`
	Score       *float64  `json:"score,omitempty"`
}

func NewView(n store.Note) View {
	v := View{
		ID:          n.ID,
		User:        n.UserID,
		Title:       n.Title,
		Type:        n.Type,
		Tags:        n.Tags,
		IsLocked:    n.IsLocked,
		IsEncrypted: n.IsEncrypted,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	state := policy.StateOf(n.IsLocked, n.IsEncrypted)
	if policy.Can(state, policy.ActionRead) {
		content := n.Content
		v.Content = &content
	} else {
		v.Message = policy.Message(state)
	}
	return v
}

func NewViews(items []store.Note) []View {
	out := make([]View, 0, len(items))
	for _, n := range items {
		out = append(out, NewView(n))
	}
	return out
}

func NewScoredViews(hits []store.ScoredNote) []View {
	out := make([]View, 0, len(hits))
	for _, hit := range hits {
		v := NewView(hit.Note)
		score := hit.Score
		v.Score = &score
		out = append(out, v)
	}
	return out
}

// Patch carries the fields of an update request that were present.
type Patch struct {
	Title   *string
	Content *string
	Type    *string
	Tags    *[]string
}

// Apply overlays the patch on the stored note and returns the draft to
// validate. Lock state is set at creation only, so it is not carried.
func (p Patch) Apply(n store.Note) Draft {
	d := Draft{
		Title:   n.Title,
		Content: n.Content,
		Type:    n.Type,
		Tags:    n.Tags,
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.Tags != nil {
		d.Tags = *p.Tags
	}
	return d
}

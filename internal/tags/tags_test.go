package tags

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTag(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr error
	}{
		{name: "space becomes underscore", in: "hello world", want: "hello_world"},
		{name: "trim and collapse", in: "  a  b  ", want: "a_b"},
		{name: "tabs and newlines", in: "a\t\nb", want: "a_b"},
		{name: "hierarchical", in: "work/project-x", want: "work/project-x"},
		{name: "bad character", in: "bad!", wantErr: ErrInvalidChars},
		{name: "blank", in: "   ", wantErr: ErrEmpty},
		{name: "not a string", in: 42, wantErr: ErrNotString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatTag(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTagIsIdempotent(t *testing.T) {
	for _, in := range []string{"a", "a/b/c", "x_y-z", "hello world", "  many   spaces here "} {
		once, err := FormatTag(in)
		require.NoError(t, err)
		twice, err := FormatTag(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestValidateTags(t *testing.T) {
	got, err := ValidateTags([]string{"a", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = ValidateTags([]any{"x y", "x_y", "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x_y", "z"}, got)

	_, err = ValidateTags("a")
	assert.ErrorIs(t, err, ErrNotList)

	_, err = ValidateTags(nil)
	assert.ErrorIs(t, err, ErrNotList)

	_, err = ValidateTags([]any{"ok", 3})
	assert.ErrorIs(t, err, ErrNotString)
}

func TestCheckNoteTags(t *testing.T) {
	assert.NoError(t, CheckNoteTags(nil))
	assert.NoError(t, CheckNoteTags([]string{"a/b", "c_d", "e-f"}))
	assert.ErrorIs(t, CheckNoteTags([]string{"x", "x"}), ErrDuplicate)
	assert.ErrorIs(t, CheckNoteTags([]string{"a b"}), ErrInvalidChars)
	assert.ErrorIs(t, CheckNoteTags([]string{""}), ErrEmpty)
	assert.ErrorIs(t, CheckNoteTags([]string{strings.Repeat("a", MaxLength+1)}), ErrTooLong)
	assert.NoError(t, CheckNoteTags([]string{strings.Repeat("a", MaxLength)}))
}

func TestHierarchy(t *testing.T) {
	got := Hierarchy([]string{"parent/child/grandchild", "parent/child2", "other"})

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"parent":{"child":{"grandchild":null},"child2":null},"other":null}`, string(raw))
}

func TestHierarchyKeepsChildrenOfLeafTags(t *testing.T) {
	for _, order := range [][]string{{"a", "a/b"}, {"a/b", "a"}} {
		raw, err := json.Marshal(Hierarchy(order))
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":{"b":null}}`, string(raw), "order %v", order)
	}
}

func TestCountHierarchy(t *testing.T) {
	got := CountHierarchy([][]string{
		{"work/a", "home"},
		{"work/a", "work/b"},
		{"home"},
	})

	require.Contains(t, got, "work")
	assert.Equal(t, 3, got["work"].Count)
	assert.Equal(t, 2, got["work"].Children["a"].Count)
	assert.Nil(t, got["work"].Children["a"].Children)
	assert.Equal(t, 1, got["work"].Children["b"].Count)
	assert.Equal(t, 2, got["home"].Count)
	assert.Nil(t, got["home"].Children)
}

func TestFolderTag(t *testing.T) {
	tag, err := FolderTag(" Project Notes ")
	require.NoError(t, err)
	assert.Equal(t, "folder/Project_Notes", tag)

	_, err = FolderTag("bad?name")
	assert.Error(t, err)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldSame(t *testing.T) {
	members := list("members").foldCase()
	events := list("events")
	order := list("allowed_values").ordered()

	tests := []struct {
		name  string
		field Field
		a, b  any
		want  bool
	}{
		{"folded list", members, []string{"Alice", "bob"}, []string{"bob", "alice"}, true},
		{"folded list differs", members, []string{"Alice"}, []string{"carol"}, false},
		{"case sensitive list", events, []string{"Push"}, []string{"push"}, false},
		{"unordered list", events, []string{"push", "release"}, []string{"release", "push"}, true},
		{"missing and empty list", events, nil, []string{}, true},
		{"ordered list", order, []string{"a", "b"}, []string{"b", "a"}, false},
		{"folded string", str("privacy").foldCase(), "Closed", "closed", true},
		{"string", str("privacy"), "Closed", "closed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.field.Same(tt.a, tt.b))
		})
	}
}

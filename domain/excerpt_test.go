package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "short text kept", input: "A quiet morning.", want: "A quiet morning."},
		{name: "exact length kept", input: strings.Repeat("x", ExcerptLength), want: strings.Repeat("x", ExcerptLength)},
		{name: "one over truncated", input: strings.Repeat("x", ExcerptLength+1), want: strings.Repeat("x", ExcerptLength) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excerpt(tt.input))
		})
	}
}

func TestExcerptCountsRunes(t *testing.T) {
	got := Excerpt(strings.Repeat("é", ExcerptLength*2))
	assert.Equal(t, ExcerptLength+utf8.RuneCountInString("..."), utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

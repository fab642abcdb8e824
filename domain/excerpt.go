package domain

import "unicode/utf8"

// ExcerptLength is the number of runes kept from a post body in every excerpt.
const ExcerptLength = 200

const ellipsis = "..."

// Excerpt truncates text to ExcerptLength runes, appending an ellipsis only
// when something was cut.
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= ExcerptLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:ExcerptLength]) + ellipsis
}

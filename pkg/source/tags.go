package source

import (
	"strings"
	"unicode"
)

// ExtractTags returns the lowercase hashtags found in text plus the given
// categories, deduplicated and in first-seen order.
func ExtractTags(text string, categories []string) []string {
	seen := make(map[string]bool)
	var tags []string

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, c := range categories {
		add(strings.TrimPrefix(c, "#"))
	}

	for _, word := range strings.Fields(text) {
		if !strings.HasPrefix(word, "#") {
			continue
		}
		tag := strings.TrimRightFunc(word[1:], func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		add(tag)
	}

	return tags
}

// MatchesAny reports whether any tag equals one of the wanted values, ignoring case.
func MatchesAny(tags, wanted []string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}

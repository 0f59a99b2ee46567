package dynamic

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	titleSimilarity = 0.9
	bodySimilarity  = 0.8
	bodySeparator   = "\n=================\n"
	maxTitleRunes   = 30
)

// mergeText builds a post body from a description that may repeat the title
// and a dynamic text that may repeat the description. A leading copy of the
// title is stripped from desc; near-identical desc and dynamic collapse into
// the longer of the two.
func mergeText(title, desc, dynamic string) string {
	stripped := desc
	if title != "" && desc != "" {
		descRunes := []rune(desc)
		n := min(utf8.RuneCountInString(title), len(descRunes))
		if similarity(title, string(descRunes[:n])) > titleSimilarity {
			stripped = strings.TrimLeftFunc(string(descRunes[n:]), unicode.IsSpace)
		}
	}

	switch {
	case dynamic == "":
		return stripped
	case stripped == "":
		return dynamic
	}

	duplicate := similarity(dynamic, stripped) > bodySimilarity ||
		(stripped != desc && similarity(dynamic, desc) > bodySimilarity)
	if duplicate {
		if utf8.RuneCountInString(dynamic) < utf8.RuneCountInString(stripped) {
			return stripped
		}
		return dynamic
	}
	return stripped + bodySeparator + dynamic
}

// similarity is the matching-blocks ratio of a and b compared rune by rune,
// in [0, 1].
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// synthesizeTitle derives a title from the first line of text.
func synthesizeTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "..."
	}
	return line
}

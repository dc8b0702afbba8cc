package utils

import (
	"html"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

var (
	footnotePattern = regexp.MustCompile(`\[\d+\]`)
	nonKeyPattern   = regexp.MustCompile(`[^a-z0-9 &]+`)
	spacePattern    = regexp.MustCompile(`\s+`)
	segmentPattern  = regexp.MustCompile(`[>,]`)

	// "Set 1:", "Set II:", "Encore:" and "Encore::" labels at the start of a segment
	setLabelPattern = regexp.MustCompile(`(?i)^(?:set\s*(?:\d+|[iv]+)|encore)\b\s*:{0,2}\s*`)

	quoteStripper = strings.NewReplacer(
		"'", "", "’", "", "‘", "", "`", "",
		"\"", "", "“", "", "”", "",
	)
)

// NormalizeTitle returns the matching key for a song title. Two titles name the same
// song exactly when their keys are equal.
func NormalizeTitle(raw string) string {
	s := norm.NFKC.String(html.UnescapeString(raw))
	s = strings.ToLower(s)
	s = footnotePattern.ReplaceAllString(s, "")
	s = quoteStripper.Replace(s)
	s = strings.ToLower(unidecode.Unidecode(s))
	s = quoteStripper.Replace(s)
	s = nonKeyPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanTitle turns a raw setlist token into a display title: entities unescaped,
// footnote markers dropped and whitespace collapsed.
func CleanTitle(raw string) string {
	s := html.UnescapeString(raw)
	s = footnotePattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SplitSetlist splits raw setlist text on segues (">") and set separators (",")
// and returns the song titles in order.
func SplitSetlist(raw string) []string {
	var titles []string
	for _, token := range segmentPattern.Split(raw, -1) {
		token = strings.TrimSpace(token)
		token = strings.TrimSpace(setLabelPattern.ReplaceAllString(token, ""))
		if token == "" {
			continue
		}
		titles = append(titles, token)
	}
	return titles
}

func SegmentCount(raw string) int {
	return len(SplitSetlist(raw))
}

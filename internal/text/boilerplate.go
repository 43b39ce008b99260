package text

import "regexp"

// markerSearchWindow bounds how deep into the text a "start of ebook" marker
// is honored; a marker later than this is narrative text, not front matter.
const markerSearchWindow = 10000

var (
	startMarkerRe = regexp.MustCompile(`(?im)^.*start of.{0,120}?ebook.*$`)
	endMarkerRe   = regexp.MustCompile(`(?im)^.*end of.{0,120}?ebook.*$`)

	// Whole-line metadata patterns removed case-insensitively.
	metadataLineRes = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*title\s*:.*$`),
		regexp.MustCompile(`(?im)^\s*author\s*:.*$`),
		regexp.MustCompile(`(?im)^\s*release date\s*:.*$`),
		regexp.MustCompile(`(?im)^\s*language\s*:.*$`),
		regexp.MustCompile(`(?im)^\s*produced by\b.*$`),
		regexp.MustCompile(`(?im)^.*publisher.{0,60}?disclaim.*$`),
	}

	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// StripBoilerplate removes licensing/front-matter text. The transform is
// order-sensitive: marker trimming, then line-level metadata removal, then
// newline collapsing. Text without markers passes through with only the
// line-level rules applied, so narrative content is never removed.
func StripBoilerplate(s string) string {
	if loc := startMarkerRe.FindStringIndex(s); loc != nil && loc[0] < markerSearchWindow {
		s = s[loc[1]:]
	}
	if loc := endMarkerRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}

	for _, re := range metadataLineRes {
		s = re.ReplaceAllString(s, "")
	}

	return newlineRunRe.ReplaceAllString(s, "\n\n")
}

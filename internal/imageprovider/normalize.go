package imageprovider

import (
	"regexp"
	"strings"
)

// separatorRun matches runs of URL-encoded spaces and whitespace.
var separatorRun = regexp.MustCompile(`[+\s]+`)

// Normalize canonicalizes a raw name before candidates are derived from it.
// Runs of '+' and whitespace collapse to one space, the fragment "(f" becomes "(F"
// to match the remote naming, and the result is trimmed.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := separatorRun.ReplaceAllString(raw, " ")
	s = strings.ReplaceAll(s, "(f", "(F")
	return strings.TrimSpace(s)
}

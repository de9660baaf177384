// Package sanitize cleans model output before it reaches clients: raw URLs
// are stripped and web-search citation markers are folded into a sources list.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	parenURLRe     = regexp.MustCompile(`\(\s*https?://[^)]*\)`)
	bareURLRe      = regexp.MustCompile(`https?://\S+`)
	emptyParenRe   = regexp.MustCompile(`\(\s*\)`)
	spaceRunRe     = regexp.MustCompile(`[ \t]{2,}`)
	spacePunctRe   = regexp.MustCompile(`[ \t]+([.,!?;:])`)

	// citationRe matches (domain.tld) markers the web-search model emits.
	// The TLD must be alphabetic, so parenthesized numbers stay untouched.
	// One trailing punctuation mark inside the parens is tolerated.
	citationRe = regexp.MustCompile(`\(\s*([A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,})[.,;:]?\s*\)`)
)

// StripURLs removes link noise from model output. Markdown links keep their
// label, bare and parenthesized URLs disappear, and the leftover spacing is
// tidied. Applying it twice is a no-op.
func StripURLs(text string) string {
	text = markdownLinkRe.ReplaceAllString(text, "$1")
	text = parenURLRe.ReplaceAllString(text, "")
	text = bareURLRe.ReplaceAllString(text, "")
	text = emptyParenRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = spacePunctRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// ExtractCitations collects (domain.tld) markers in order of first
// appearance, deduplicating case-insensitively.
func ExtractCitations(text string) []string {
	matches := citationRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var citations []string
	for _, m := range matches {
		key := strings.ToLower(m[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, m[1])
	}
	return citations
}

// FormatWebSearchResponse turns inline citation markers into a trailing
// numbered sources list and strips residual URLs from the body.
func FormatWebSearchResponse(text string) string {
	citations := ExtractCitations(text)

	body := citationRe.ReplaceAllString(text, "")
	body = StripURLs(body)

	if len(citations) == 0 {
		return body
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n**Sources:**")
	for i, citation := range citations {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, citation))
	}
	return b.String()
}

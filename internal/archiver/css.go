package archiver

import (
	"regexp"
)

// RewriteFunc transforms a single URL reference discovered inside CSS text
// (or an HTML attribute) into its replacement. It is given the raw,
// as-written reference string and returns the string to substitute in its
// place. A nil RewriteFunc means "scan only, don't rewrite".
type RewriteFunc func(ref string) string

// Scanner extracts URL references from CSS text and, if a RewriteFunc is
// given, rewrites them in place. Two back-ends implement this contract: a
// regex back-end (always available) and a structured back-end built on a
// real CSS tokenizer. Both return URLs in source order and both skip empty
// url() values.
type Scanner interface {
	Scan(text string, inline bool, rewrite RewriteFunc) (newText string, urls []string)
}

// cssURLPatterns are the five patterns the regex back-end applies, in
// order, to a piece of CSS text. The named "url" group is the capture that
// gets extracted and, if rewritten, substituted back into the match.
var cssURLPatterns = []*regexp.Regexp{
	// @import 'default.css'
	regexp.MustCompile(`@import\s*'(?P<url>[^']*)'`),
	// @import "default.css"
	regexp.MustCompile(`@import\s*"(?P<url>[^"]*)"`),
	// url(unquoted-token) — token runs to the next ')'
	regexp.MustCompile(`url\((?P<url>[^'"][^)]*)\)`),
	// url("quoted")
	regexp.MustCompile(`url\("(?P<url>[^"]*)"\)`),
	// url('quoted')
	regexp.MustCompile(`url\('(?P<url>[^']*)'\)`),
}

// RegexScanner is the always-available CSS back-end: five sequential regex
// passes, no real parser, errors impossible (a non-match is simply not a
// URL). It is the fallback used whenever the structured back-end can't or
// shouldn't be used.
type RegexScanner struct{}

// Scan implements Scanner. inline is accepted for interface parity with the
// structured back-end; the regex patterns apply identically to a full
// stylesheet or a single declaration list.
func (RegexScanner) Scan(text string, inline bool, rewrite RewriteFunc) (string, []string) {
	var urls []string
	urlGroup := func(re *regexp.Regexp) int {
		for i, name := range re.SubexpNames() {
			if name == "url" {
				return i
			}
		}
		return -1
	}

	for _, re := range cssURLPatterns {
		group := urlGroup(re)
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			sub := re.FindStringSubmatch(match)
			if sub == nil || group < 0 {
				return match
			}
			ref := sub[group]
			if ref == "" {
				// Empty url() — not a URL, and left untouched per spec.
				return match
			}
			urls = append(urls, ref)
			if rewrite == nil {
				return match
			}
			newRef := rewrite(ref)
			loc := re.FindStringSubmatchIndex(match)
			start, stop := loc[2*group], loc[2*group+1]
			return match[:start] + newRef + match[stop:]
		})
	}
	return text, urls
}

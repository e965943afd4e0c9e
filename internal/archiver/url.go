package archiver

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// IsDataURL reports whether u has the data: scheme. Data URLs are never
// fetched or rewritten — the bytes already live inline in the referencing
// document.
func IsDataURL(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Scheme, "data")
}

// FileName returns the last non-empty path segment of u, or "" if the path
// has none (root path, empty path, or a path made only of slashes).
func FileName(u *url.URL) string {
	if u == nil {
		return ""
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// Resolve resolves ref against base per RFC 3986 reference resolution. A nil
// base returns ref unchanged.
func Resolve(base, ref *url.URL) *url.URL {
	if base == nil || ref == nil {
		return ref
	}
	return base.ResolveReference(ref)
}

// ParseAbsolute parses raw (resolved against base, if base is non-nil) and
// returns the resulting absolute URL. It never returns an error for inputs
// the DOM pass legitimately skips (empty string, fragment-only, javascript:,
// mailto:) — callers check those before calling ParseAbsolute.
func ParseAbsolute(base *url.URL, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return asciiHost(Resolve(base, u)), nil
}

// asciiHost rewrites u's host to its punycode form when it carries
// non-ASCII characters, so downstream fetches and filesystem paths never
// have to deal with raw Unicode hostnames. Hosts that fail IDNA validation
// (or that are already ASCII) are returned unchanged.
func asciiHost(u *url.URL) *url.URL {
	if u == nil || u.Host == "" {
		return u
	}
	ascii, err := idna.Lookup.ToASCII(u.Host)
	if err != nil || ascii == u.Host {
		return u
	}
	out := *u
	out.Host = ascii
	return &out
}

// Equal reports whether a and b denote the same resource after Go's
// standard URL normalization (String() round-trip). This is the "byte-exact
// after normalization" equality spec.md's data model calls for.
func Equal(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// skippableRef reports whether a raw attribute/CSS reference value should
// never be resolved or fetched: empty, a same-page anchor, or a
// non-fetchable pseudo-scheme.
func skippableRef(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" {
		return true
	}
	if strings.HasPrefix(v, "#") {
		return true
	}
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:")
}

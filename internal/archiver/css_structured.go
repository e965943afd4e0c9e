package archiver

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// StructuredScanner is the preferred CSS back-end: it tokenizes the CSS
// text with a real lexer instead of regexes, so it can't be confused by
// things that merely look like url()/@import (e.g. inside a comment or a
// string value for an unrelated property). Parse errors are silently
// ignored — a malformed declaration just doesn't contribute URLs, matching
// spec.md's "errors silently ignored" requirement for this back-end.
type StructuredScanner struct{}

// Scan implements Scanner. inline is accepted for interface parity with
// RegexScanner; the tokenizer scans a full stylesheet and a single
// declaration list identically — only "@import" rules (not to expect inside
// a declaration list) differ, and they simply never occur there.
func (StructuredScanner) Scan(text string, inline bool, rewrite RewriteFunc) (string, []string) {
	var (
		out  strings.Builder
		urls []string
		lex  = css.NewLexer(parse.NewInputString(text))
	)

	// atImport tracks whether we're inside an "@import" prelude, where the
	// next string/url token is the imported stylesheet's location rather
	// than an ordinary property value.
	atImport := false

	for {
		tt, data := lex.Next()
		if tt == css.ErrorToken {
			break
		}

		switch tt {
		case css.AtKeywordToken:
			atImport = strings.EqualFold(string(data), "@import")
			out.Write(data)

		case css.URLToken:
			ref, quote := parseURLToken(data)
			if ref == "" {
				out.Write(data)
				break
			}
			urls = append(urls, ref)
			if rewrite == nil {
				out.Write(data)
			} else {
				out.WriteString(formatURLToken(rewrite(ref), quote))
			}
			atImport = false

		case css.StringToken:
			if atImport {
				ref, quote := unquoteCSSString(string(data))
				if ref == "" {
					out.Write(data)
				} else {
					urls = append(urls, ref)
					if rewrite == nil {
						out.Write(data)
					} else {
						out.WriteString(quoteCSSString(rewrite(ref), quote))
					}
				}
				atImport = false
			} else {
				out.Write(data)
			}

		case css.WhitespaceToken, css.CommentToken:
			out.Write(data)

		default:
			atImport = false
			out.Write(data)
		}
	}

	return out.String(), urls
}

// parseURLToken extracts the reference and quote character (0 for
// unquoted) from a raw URLToken, whose bytes cover the entire "url(...)"
// construct.
func parseURLToken(tok []byte) (ref string, quote byte) {
	s := string(tok)
	if !strings.HasPrefix(strings.ToLower(s), "url(") || !strings.HasSuffix(s, ")") {
		return "", 0
	}
	inner := strings.TrimSpace(s[4 : len(s)-1])
	if inner == "" {
		return "", 0
	}
	if inner[0] == '"' || inner[0] == '\'' {
		ref, q := unquoteCSSString(inner)
		return ref, q
	}
	return inner, 0
}

// formatURLToken re-serializes ref as a "url(...)" token using the original
// quoting style.
func formatURLToken(ref string, quote byte) string {
	if quote == 0 {
		return "url(" + ref + ")"
	}
	return "url(" + quoteCSSString(ref, quote) + ")"
}

// unquoteCSSString strips a leading/trailing quote character from a CSS
// string token and reports which quote was used (0 if unquoted).
func unquoteCSSString(s string) (string, byte) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], s[0]
	}
	return s, 0
}

// quoteCSSString wraps ref in quote (defaulting to '"' when quote is 0).
func quoteCSSString(ref string, quote byte) string {
	if quote == 0 {
		quote = '"'
	}
	return string(quote) + ref + string(quote)
}

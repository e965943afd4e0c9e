package archiver

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// MHTMLWriter packs every added file into a single multipart/related MIME
// message. RewriteURL is the identity here: MHTML is content-addressed by
// the original URLs, so nothing needs a local name.
type MHTMLWriter struct {
	rootContent     []byte
	contentLocation string
	contentType     string
	dest            string

	boundary string
	files    map[string]AssetFile // keyed by location.String()
}

// NewMHTMLWriter constructs an MHTML writer. rootContent may be empty and
// replaced later via SetRootContent.
func NewMHTMLWriter(rootContent []byte, contentLocation *url.URL, contentType, dest string) *MHTMLWriter {
	return &MHTMLWriter{
		rootContent:     rootContent,
		contentLocation: contentLocation.String(),
		contentType:     contentType,
		dest:            dest,
		boundary:        "---=_pagearchiver-" + newUUIDv4(),
		files:           make(map[string]AssetFile),
	}
}

// SuggestedExt implements Writer.
func (*MHTMLWriter) SuggestedExt() string { return ".mht" }

// Dest implements Writer.
func (w *MHTMLWriter) Dest() string { return w.dest }

// RewriteURL implements Writer. MHTML preserves original URLs verbatim.
func (w *MHTMLWriter) RewriteURL(u *url.URL, base *url.URL) *url.URL {
	return u
}

// SetRootContent implements Writer.
func (w *MHTMLWriter) SetRootContent(content []byte) {
	w.rootContent = content
}

// AddFile implements Writer. The transfer encoding is derived from
// contentType: quoted-printable for text/*, base64 otherwise (including
// when contentType is empty — an untyped asset is treated as binary).
func (w *MHTMLWriter) AddFile(location *url.URL, content []byte, contentType string) {
	enc := Base64
	if strings.HasPrefix(contentType, "text/") {
		enc = QuotedPrintable
	}
	w.files[location.String()] = AssetFile{
		Content:          content,
		ContentType:      contentType,
		ContentLocation:  location.String(),
		TransferEncoding: enc,
	}
}

// RemoveFile implements Writer.
func (w *MHTMLWriter) RemoveFile(location *url.URL) {
	delete(w.files, location.String())
}

// Write implements Writer: emits the multipart/related message to w.dest.
func (w *MHTMLWriter) Write() error {
	root := AssetFile{
		Content:          w.rootContent,
		ContentType:      w.contentType,
		ContentLocation:  w.contentLocation,
		TransferEncoding: QuotedPrintable,
	}

	locations := make([]string, 0, len(w.files))
	for loc := range w.files {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	var buf strings.Builder
	fmt.Fprintf(&buf, "Content-Type: multipart/related; boundary=\"%s\"\r\n", w.boundary)
	buf.WriteString("MIME-Version: 1.0\r\n\r\n")

	if err := writePart(&buf, w.boundary, root); err != nil {
		return fmt.Errorf("mhtml: root part: %w", err)
	}
	for _, loc := range locations {
		if err := writePart(&buf, w.boundary, w.files[loc]); err != nil {
			return fmt.Errorf("mhtml: part %s: %w", loc, err)
		}
	}
	buf.WriteString("--" + w.boundary + "--\r\n")

	return writeFileAtomic(w.dest, []byte(buf.String()))
}

// writePart appends one MIME part (boundary line, headers, blank line,
// encoded payload) to buf.
func writePart(buf *strings.Builder, boundary string, f AssetFile) error {
	if !isASCII(f.ContentLocation) {
		return &EncodingError{Field: "Content-Location", Value: f.ContentLocation}
	}
	if f.ContentType != "" && !isASCII(f.ContentType) {
		return &EncodingError{Field: "Content-Type", Value: f.ContentType}
	}

	buf.WriteString("--" + boundary + "\r\n")
	fmt.Fprintf(buf, "Content-Location: %s\r\n", f.ContentLocation)
	buf.WriteString("MIME-Version: 1.0\r\n")
	if f.ContentType != "" {
		fmt.Fprintf(buf, "Content-Type: %s\r\n", f.ContentType)
	}
	fmt.Fprintf(buf, "Content-Transfer-Encoding: %s\r\n", f.TransferEncoding)
	buf.WriteString("\r\n")

	switch f.TransferEncoding {
	case QuotedPrintable:
		buf.Write(quotedPrintableEncode(f.Content))
	default:
		buf.Write(chunkedBase64(f.Content))
	}
	buf.WriteString("\r\n")
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

// chunkedBase64 standard-base64-encodes data and wraps it to 76 columns,
// CRLF between wrapped lines, with a trailing CRLF after the payload.
func chunkedBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	const maxLen = 76
	var out []byte
	for i := 0; i < len(encoded); i += maxLen {
		end := i + maxLen
		if end > len(encoded) {
			end = len(encoded)
		}
		out = append(out, encoded[i:end]...)
		out = append(out, '\r', '\n')
	}
	if len(encoded) == 0 {
		out = append(out, '\r', '\n')
	}
	return out
}

// quotedPrintableEncode implements the quoted-printable rules: bytes in
// '!'..'<' and '>'..'~' are literal; everything else, TAB and space
// included, is "=HH" (so no line ever ends in whitespace). Lines are
// soft-wrapped at 76 columns such that a "=HH" escape is never split across
// the boundary — if a line would end inside an escape, the escape is pushed
// to the next line and the current line is closed with a trailing '='.
func quotedPrintableEncode(data []byte) []byte {
	const maxLen = 76

	var output [][]byte
	current := make([]byte, 0, maxLen)

	for _, b := range data {
		if (b >= '!' && b <= '<') || (b >= '>' && b <= '~') {
			current = append(current, b)
		} else {
			current = append(current, '=', hexDigit(b>>4), hexDigit(b&0xf))
		}

		if len(current) >= maxLen {
			splitAt := maxLen - 1
			head, tail := current[:splitAt], current[splitAt:]
			if quotedPos := lastIndexByte(head, '='); quotedPos >= 0 && quotedPos+2 >= splitAt {
				tail = append(append([]byte{}, head[quotedPos:]...), tail...)
				head = head[:quotedPos]
			}
			output = append(output, append(head[:len(head):len(head)], '='))
			current = tail
		}
	}
	output = append(output, current)
	return joinCRLF(output)
}

func hexDigit(n byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[n&0xf]
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func joinCRLF(lines [][]byte) []byte {
	var out []byte
	for i, line := range lines {
		if i > 0 {
			out = append(out, '\r', '\n')
		}
		out = append(out, line...)
	}
	return out
}

package archiver

import (
	"bytes"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

// End-to-end scenario B: umlaut text encoded as ISO-8859-1 round-trips
// through quoted-printable exactly.
func TestQuotedPrintableEncodeUmlauts(t *testing.T) {
	text := "Die süße Hündin läuft in die Höhle des Bären"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		t.Fatalf("encoding fixture to ISO-8859-1: %v", err)
	}

	got := string(quotedPrintableEncode([]byte(encoded)))
	want := "Die=20s=FC=DFe=20H=FCndin=20l=E4uft=20in=20die=20H=F6hle=20des=20B=E4ren"
	if got != want {
		t.Errorf("quotedPrintableEncode = %q, want %q", got, want)
	}
}

// End-to-end scenario D: UTF-8 bytes base64-encode to a single short line.
func TestChunkedBase64(t *testing.T) {
	got := string(chunkedBase64([]byte("😁 image data")))
	want := "8J+YgSBpbWFnZSBkYXRh\r\n"
	if got != want {
		t.Errorf("chunkedBase64 = %q, want %q", got, want)
	}
}

func TestQuotedPrintableNeverSplitsEscape(t *testing.T) {
	data := bytes.Repeat([]byte{0xFC}, 200) // forces many =HH escapes
	lines := strings.Split(string(quotedPrintableEncode(data)), "\r\n")
	isHex := func(b byte) bool {
		return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F')
	}
	for _, line := range lines {
		if len(line) > 76 {
			t.Errorf("line exceeds 76 bytes: %q (%d)", line, len(line))
		}
		// A soft line break ("=" as the very last byte) is fine; any
		// other trailing "=" or "=H" means an escape got cut in half.
		line = strings.TrimSuffix(line, "=")
		if n := len(line); n >= 1 && line[n-1] == '=' {
			t.Errorf("escape split at end of line: %q", line)
		}
		if n := len(line); n >= 2 && line[n-2] == '=' && isHex(line[n-1]) {
			t.Errorf("escape split at end of line: %q", line)
		}
	}
}

func TestMHTMLWriterPartOrdering(t *testing.T) {
	// End-to-end scenario C.
	page, _ := url.Parse("http://www.example.com/")
	dest := filepath.Join(t.TempDir(), "page.mht")
	w := NewMHTMLWriter([]byte("root"), page, "text/html", dest)

	subdomains := []string{"a", "h", "g", "b", "i", "z", "t"}
	for _, s := range subdomains {
		loc, _ := url.Parse("http://" + s + ".example.com/")
		w.AddFile(loc, []byte("content-"+s), "text/plain")
	}

	if err := w.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	want := []string{
		"http://www.example.com/",
		"http://a.example.com/",
		"http://b.example.com/",
		"http://g.example.com/",
		"http://h.example.com/",
		"http://i.example.com/",
		"http://t.example.com/",
		"http://z.example.com/",
	}

	var positions []int
	for _, loc := range want {
		idx := strings.Index(string(out), "Content-Location: "+loc)
		if idx < 0 {
			t.Fatalf("missing part for %s", loc)
		}
		positions = append(positions, idx)
	}
	for i := 1; i < len(positions); i++ {
		if positions[i] <= positions[i-1] {
			t.Errorf("part %s did not appear after %s in output", want[i], want[i-1])
		}
	}
}

func TestMHTMLWriterTransferEncodingByContentType(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	dest := filepath.Join(t.TempDir(), "page.mht")
	w := NewMHTMLWriter(nil, page, "text/html", dest)

	textLoc, _ := url.Parse("http://example.com/style.css")
	binLoc, _ := url.Parse("http://example.com/image.png")
	w.AddFile(textLoc, []byte("body{}"), "text/css")
	w.AddFile(binLoc, []byte{0x89, 0x50, 0x4e, 0x47}, "image/png")

	if err := w.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, _ := os.ReadFile(dest)
	content := string(out)

	cssIdx := strings.Index(content, "Content-Location: http://example.com/style.css")
	pngIdx := strings.Index(content, "Content-Location: http://example.com/image.png")
	if cssIdx < 0 || pngIdx < 0 {
		t.Fatal("missing expected parts")
	}
	if !strings.Contains(content[cssIdx:min(cssIdx+300, len(content))], "Content-Transfer-Encoding: quoted-printable") {
		t.Errorf("text/css part should be quoted-printable")
	}
	if !strings.Contains(content[pngIdx:min(pngIdx+300, len(content))], "Content-Transfer-Encoding: base64") {
		t.Errorf("image/png part should be base64")
	}
}

func TestMHTMLWriterLineLengthInvariant(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	dest := filepath.Join(t.TempDir(), "page.mht")
	w := NewMHTMLWriter(bytes.Repeat([]byte("x"), 500), page, "text/html", dest)

	loc, _ := url.Parse("http://example.com/blob.bin")
	w.AddFile(loc, bytes.Repeat([]byte{0xAB}, 500), "application/octet-stream")

	if err := w.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, _ := os.ReadFile(dest)

	// The top-level message header (and each part's own headers) carry no
	// line-length limit per spec.md; only wrapped body content does. Split
	// off the message header block (everything before the first blank
	// line) before checking.
	content := string(out)
	if idx := strings.Index(content, "\r\n\r\n"); idx >= 0 {
		content = content[idx+4:]
	}
	for i, line := range strings.Split(content, "\r\n") {
		if len(line) > 76 {
			t.Errorf("line %d exceeds 76 bytes: %d", i, len(line))
		}
	}
}

func TestMHTMLWriterRejectsNonASCIIContentLocation(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	dest := filepath.Join(t.TempDir(), "page.mht")
	w := NewMHTMLWriter(nil, page, "text/html", dest)

	// Force a non-ASCII Content-Location directly, bypassing AddFile's
	// normal URL-based key, to exercise the Write()-time ASCII check.
	w.files["http://example.com/café.png"] = AssetFile{
		Content:          []byte("x"),
		ContentLocation:  "http://example.com/café.png",
		TransferEncoding: Base64,
	}

	err := w.Write()
	if err == nil {
		t.Fatal("expected an EncodingError, got nil")
	}
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected error chain to contain *EncodingError, got %v", err)
	}
}

func TestBoundaryIsUniquePerWriter(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	w1 := NewMHTMLWriter(nil, page, "text/html", "a.mht")
	w2 := NewMHTMLWriter(nil, page, "text/html", "b.mht")
	if w1.boundary == w2.boundary {
		t.Error("two writers produced the same boundary")
	}
	if !strings.HasPrefix(w1.boundary, "---=_pagearchiver-") {
		t.Errorf("boundary %q missing expected prefix", w1.boundary)
	}
}

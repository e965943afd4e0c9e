package archiver

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIncFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"file", "file-1"},
		{"file.html", "file-1.html"},
		{"file-1", "file-2"},
		{"file-1.html", "file-2.html"},
		{"1-file", "1-file-1"},
		{"1-file-1", "1-file-2"},
		{"1-file-1.html", "1-file-2.html"},
		{"file-", "file--1"},
		{"file--1", "file--2"},
		{"file-23", "file-24"},
		{"file-23.html", "file-24.html"},
	}
	for _, tc := range tests {
		if got := IncFilename(tc.in); got != tc.want {
			t.Errorf("IncFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFolderPathForDest(t *testing.T) {
	tests := []struct{ dest, want string }{
		{"Webpage Title.html", "Webpage Title"},
		{"Webpage Title", "Webpage Title - assets"},
		{"/home/downloads/webpage.html", "/home/downloads/webpage"},
		{"/home/downloads/webpage", "/home/downloads/webpage - assets"},
	}
	for _, tc := range tests {
		if got := folderPathForDest(tc.dest); got != tc.want {
			t.Errorf("folderPathForDest(%q) = %q, want %q", tc.dest, got, tc.want)
		}
	}
}

func TestFolderWriterFilenameAllocationIsInjective(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	w := NewFolderWriter(nil, page, "text/html", filepath.Join(t.TempDir(), "page.html"))

	u1, _ := url.Parse("http://example.com/assets/logo.png")
	u2, _ := url.Parse("http://example.com/other/logo.png")

	n1 := w.RewriteURL(u1, nil)
	n2 := w.RewriteURL(u2, nil)
	if n1.String() == n2.String() {
		t.Errorf("two distinct URLs mapped to the same filename: %q", n1)
	}
}

func TestFolderWriterRewriteURLIdempotent(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	w := NewFolderWriter(nil, page, "text/html", filepath.Join(t.TempDir(), "page.html"))

	u, _ := url.Parse("http://example.com/logo.png")
	first := w.RewriteURL(u, nil)
	second := w.RewriteURL(u, nil)
	if first.String() != second.String() {
		t.Errorf("rewrite_url not idempotent: %q != %q", first, second)
	}
}

func TestFolderWriterDataURLPassthrough(t *testing.T) {
	page, _ := url.Parse("http://example.com/")
	w := NewFolderWriter(nil, page, "text/html", filepath.Join(t.TempDir(), "page.html"))

	u, _ := url.Parse("data:text/plain;base64,aGVsbG8=")
	got := w.RewriteURL(u, nil)
	if got.String() != u.String() {
		t.Errorf("data: url rewritten to %q, want unchanged", got)
	}
}

// End-to-end scenario A.
func TestFolderWriterEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "root.html")
	page, _ := url.Parse("http://example.com/")

	w := NewFolderWriter([]byte("root content"), page, "text/html", dest)

	imgURL, _ := url.Parse("http://example.com/assets/image.png")
	jsURL, _ := url.Parse("http://example.com/main.js")
	cssURL, _ := url.Parse("http://example.com/accidental.css")

	w.RewriteURL(imgURL, nil)
	w.RewriteURL(jsURL, nil)
	w.RewriteURL(cssURL, nil)

	w.AddFile(imgURL, []byte("Imäge cöntent"), "image/png")
	w.AddFile(jsURL, []byte(`alert("Hello")`), "application/javascript")
	w.AddFile(cssURL, []byte("this should be removed"), "text/css")
	w.RemoveFile(cssURL)

	if err := w.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rootBytes, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading root: %v", err)
	}
	if string(rootBytes) != "root content" {
		t.Errorf("root content = %q", rootBytes)
	}

	assetDir := filepath.Join(dir, w.FolderName())
	imgBytes, err := os.ReadFile(filepath.Join(assetDir, "image.png"))
	if err != nil {
		t.Fatalf("reading image.png: %v", err)
	}
	if string(imgBytes) != "Imäge cöntent" {
		t.Errorf("image.png content = %q", imgBytes)
	}

	jsBytes, err := os.ReadFile(filepath.Join(assetDir, "main.js"))
	if err != nil {
		t.Fatalf("reading main.js: %v", err)
	}
	if string(jsBytes) != `alert("Hello")` {
		t.Errorf("main.js content = %q", jsBytes)
	}

	if _, err := os.Stat(filepath.Join(assetDir, "accidental.css")); err == nil {
		t.Errorf("accidental.css should not exist after RemoveFile")
	}

	entries, err := os.ReadDir(assetDir)
	if err != nil {
		t.Fatalf("reading asset dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	want := []string{"image.png", "main.js"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("asset dir contents mismatch (-want +got):\n%s", diff)
	}
}

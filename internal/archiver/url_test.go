package archiver

import (
	"net/url"
	"testing"
)

func TestIsDataURL(t *testing.T) {
	data, _ := url.Parse("data:text/plain;base64,aGVsbG8=")
	http, _ := url.Parse("http://example.com/")
	if !IsDataURL(data) {
		t.Error("expected data: url to report true")
	}
	if IsDataURL(http) {
		t.Error("expected http: url to report false")
	}
	if IsDataURL(nil) {
		t.Error("expected nil to report false")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct{ raw, want string }{
		{"http://example.com/folder/file.css", "file.css"},
		{"http://example.com/", ""},
		{"http://example.com/folder/", "folder"},
		{"http://example.com", ""},
	}
	for _, tc := range tests {
		u, _ := url.Parse(tc.raw)
		if got := FileName(u); got != tc.want {
			t.Errorf("FileName(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("http://example.com/css/main.css")
	ref, _ := url.Parse("default.css")
	got := Resolve(base, ref)
	want := "http://example.com/css/default.css"
	if got.String() != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestParseAbsolute(t *testing.T) {
	base, _ := url.Parse("http://example.com/folder/")
	got, err := ParseAbsolute(base, "../img/bg.png")
	if err != nil {
		t.Fatalf("ParseAbsolute: %v", err)
	}
	want := "http://example.com/img/bg.png"
	if got.String() != want {
		t.Errorf("ParseAbsolute = %q, want %q", got, want)
	}
}

func TestEqual(t *testing.T) {
	a, _ := url.Parse("http://example.com/")
	b, _ := url.Parse("http://example.com/")
	c, _ := url.Parse("http://example.com/other")
	if !Equal(a, b) {
		t.Error("expected equal urls to compare equal")
	}
	if Equal(a, c) {
		t.Error("expected different urls to compare unequal")
	}
	if Equal(a, nil) {
		t.Error("expected nil comparison to be false")
	}
}

func TestSkippableRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"#top", true},
		{"javascript:void(0)", true},
		{"mailto:a@example.com", true},
		{"http://example.com/a.png", false},
		{"/relative/path.png", false},
	}
	for _, tc := range tests {
		if got := skippableRef(tc.ref); got != tc.want {
			t.Errorf("skippableRef(%q) = %v, want %v", tc.ref, got, tc.want)
		}
	}
}

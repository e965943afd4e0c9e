package archiver

import "net/url"

// TransferEncoding selects the MIME transfer encoding used for a part of an
// MHTML archive. The folder writer does not use this type; files go to disk
// verbatim.
type TransferEncoding int

const (
	// Base64 wraps the raw bytes as standard base64, 76 columns per line.
	Base64 TransferEncoding = iota
	// QuotedPrintable escapes non-ASCII-safe bytes as =HH, 76 columns per line.
	QuotedPrintable
)

func (e TransferEncoding) String() string {
	switch e {
	case Base64:
		return "base64"
	case QuotedPrintable:
		return "quoted-printable"
	default:
		return "unknown"
	}
}

// AssetFile is a single stored asset: the bytes retrieved from a location,
// plus enough metadata to serialize it. ContentType may be empty for error
// placeholders (a failed fetch still occupies a slot in the archive).
type AssetFile struct {
	Content          []byte
	ContentType      string
	ContentLocation  string
	TransferEncoding TransferEncoding
}

// Writer is the sink an archive is built against. Exactly one of MHTMLWriter
// or FolderWriter backs any given archive run; the coordinator only ever
// talks to this interface.
//
// Lifecycle: constructed with initial (possibly empty) root content, then
// RewriteURL/AddFile/RemoveFile may be called in any order, then Write is
// called exactly once.
type Writer interface {
	// RewriteURL reports how u will appear in the final archive. base is the
	// URL of the document containing the reference: nil for link/script/img
	// references, the root page URL for references in <style> elements and
	// style attributes, and the stylesheet's URL for references found while
	// scanning a fetched stylesheet, since those are relative to it.
	// RewriteURL may mutate writer-internal state (e.g. allocate a
	// filename) as a side effect, but calling it twice with the same
	// (u, base) must return an equal result.
	RewriteURL(u *url.URL, base *url.URL) *url.URL

	// AddFile registers the bytes fetched from location, which is the
	// original (pre-rewrite) URL. Last write wins if called twice for the
	// same location.
	AddFile(location *url.URL, content []byte, contentType string)

	// RemoveFile drops a previously added file.
	RemoveFile(location *url.URL)

	// SetRootContent replaces the root document bytes given at construction.
	// The coordinator calls this once, after the DOM pass has rewritten every
	// reference in the document.
	SetRootContent(content []byte)

	// Write materializes the archive to its destination. Must be called
	// exactly once.
	Write() error

	// SuggestedExt is the writer's canonical output extension (".mht" or
	// ".html"), surfaced for CLI default-filename purposes.
	SuggestedExt() string

	// Dest is the path Write will write the root document to.
	Dest() string
}

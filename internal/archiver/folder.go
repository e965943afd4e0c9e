package archiver

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	sanitize "github.com/mrz1836/go-sanitize"
)

// FolderWriter writes the root document to dest and every asset into a
// sibling "assets" folder, rewriting references to point into it.
type FolderWriter struct {
	rootContent     []byte
	contentLocation *url.URL
	contentType     string
	dest            string

	folderPath string
	storage    Storage

	// fileMapping tracks the original resolved URL -> allocated filename,
	// so repeated references to the same asset resolve to one file.
	fileMapping map[string]string
	content     map[string]AssetFile // keyed by the allocated filename
}

// NewFolderWriter constructs a FolderWriter. dest is the path of the root
// HTML document; the asset folder is derived from it per
// folderPathForDest.
func NewFolderWriter(rootContent []byte, contentLocation *url.URL, contentType, dest string) *FolderWriter {
	return &FolderWriter{
		rootContent:     rootContent,
		contentLocation: contentLocation,
		contentType:     contentType,
		dest:            dest,
		folderPath:      folderPathForDest(dest),
		storage:         NewLocalStorage(filepath.Dir(dest)),
		fileMapping:     make(map[string]string),
		content:         make(map[string]AssetFile),
	}
}

// SuggestedExt implements Writer.
func (*FolderWriter) SuggestedExt() string { return ".html" }

// Dest implements Writer.
func (w *FolderWriter) Dest() string { return w.dest }

// SetRootContent implements Writer.
func (w *FolderWriter) SetRootContent(content []byte) {
	w.rootContent = content
}

// FolderName returns the base name of the asset folder (e.g. "page" for
// "page.html"). RewriteURL prefixes root-page references with it and Write
// stores assets under it, beside the root document.
func (w *FolderWriter) FolderName() string {
	return filepath.Base(strings.TrimRight(w.folderPath, string(filepath.Separator)))
}

// folderPathForDest derives the assets-folder path from the root document's
// destination path: "<dest-without-ext>" if dest has an extension,
// otherwise "<dest> - assets".
func folderPathForDest(dest string) string {
	dir, file := filepath.Split(dest)
	ext := filepath.Ext(file)
	name := strings.TrimSuffix(file, ext)
	if ext == "" {
		name += " - assets"
	}
	return filepath.Join(dir, name)
}

// incFilenameSuffix matches a trailing "-N" before the extension.
var incFilenameSuffix = regexp.MustCompile(`-(\d+)$`)

// IncFilename bumps the numeric suffix of filename by one, inserting "-1"
// if it has none. "logo.png" -> "logo-1.png" -> "logo-2.png".
func IncFilename(filename string) string {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)

	num := 1
	if loc := incFilenameSuffix.FindStringSubmatchIndex(name); loc != nil {
		if n, err := strconv.Atoi(name[loc[2]:loc[3]]); err == nil {
			num = n + 1
		}
		name = name[:loc[0]]
	}
	return name + "-" + strconv.Itoa(num) + ext
}

// RewriteURL implements Writer. data: URLs pass through untouched. Every
// other reference is resolved (against base, or against the root page if
// base is nil), assigned a collision-free filename in the asset folder on
// first sight, and returned either as "folder/filename" (when the
// reference came from the root page) or bare "filename" (when it came from
// inside a stylesheet already living in the folder).
func (w *FolderWriter) RewriteURL(u *url.URL, base *url.URL) *url.URL {
	if IsDataURL(u) {
		return u
	}

	resolveBase := base
	if resolveBase == nil {
		resolveBase = w.contentLocation
	}
	resolved := Resolve(resolveBase, u)
	key := resolved.String()

	filename, ok := w.fileMapping[key]
	if !ok {
		filename = FileName(resolved)
		if filename == "" {
			filename = "asset"
		}
		ext := path.Ext(filename)
		filename = sanitize.PathName(strings.TrimSuffix(filename, ext)) + ext
		for w.nameTaken(filename) {
			filename = IncFilename(filename)
		}
		w.fileMapping[key] = filename
	}

	if base == nil || Equal(base, w.contentLocation) {
		return &url.URL{Path: path.Join(w.FolderName(), filename)}
	}
	return &url.URL{Path: filename}
}

func (w *FolderWriter) nameTaken(name string) bool {
	for _, existing := range w.fileMapping {
		if existing == name {
			return true
		}
	}
	return false
}

// AddFile implements Writer. location must already have been passed to
// RewriteURL; the allocated filename is looked up from that call.
func (w *FolderWriter) AddFile(location *url.URL, content []byte, contentType string) {
	key := location.String()
	filename, ok := w.fileMapping[key]
	if !ok {
		// Defensive: a caller that adds a file without rewriting its URL
		// first still gets a slot, keyed by its raw filename.
		filename = FileName(location)
		if filename == "" {
			filename = "asset"
		}
		ext := path.Ext(filename)
		filename = sanitize.PathName(strings.TrimSuffix(filename, ext)) + ext
		for w.nameTaken(filename) {
			filename = IncFilename(filename)
		}
		w.fileMapping[key] = filename
	}
	w.content[filename] = AssetFile{
		Content:         content,
		ContentType:     contentType,
		ContentLocation: key,
	}
}

// RemoveFile implements Writer.
func (w *FolderWriter) RemoveFile(location *url.URL) {
	if filename, ok := w.fileMapping[location.String()]; ok {
		delete(w.content, filename)
	}
}

// Write implements Writer: writes the root document to dest, then every
// registered asset into the folder.
func (w *FolderWriter) Write() error {
	if err := writeFileAtomic(w.dest, w.rootContent); err != nil {
		return err
	}
	for filename, f := range w.content {
		if err := w.storage.PutBytes(filepath.Join(w.FolderName(), filename), f.Content); err != nil {
			return err
		}
	}
	return nil
}

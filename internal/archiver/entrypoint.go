package archiver

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"golang.org/x/time/rate"
)

// Format selects which Writer backs a download.
type Format int

const (
	FormatMHTML Format = iota
	FormatFolder
)

func (f Format) String() string {
	if f == FormatFolder {
		return "folder"
	}
	return "mhtml"
}

// SuggestedExt is the canonical output extension for format, matching the
// Writer that StartDownload will construct for it.
func (f Format) SuggestedExt() string {
	if f == FormatFolder {
		return (*FolderWriter)(nil).SuggestedExt()
	}
	return (*MHTMLWriter)(nil).SuggestedExt()
}

// Config holds everything a single archive run needs, independent of how
// it was invoked (CLI flags, a config file, or a caller embedding this
// package directly).
type Config struct {
	Concurrency int
	RatePerSec  float64
	Notify      func(msg string)
	// Confirm is asked before overwriting an existing destination by
	// StartDownloadChecked. A nil Confirm behaves as "always yes".
	Confirm func(dest string) bool
	// OnAsset, if set, is called once per asset fetch that reaches a
	// terminal state, for progress reporting.
	OnAsset func()
}

// StartDownload archives pageURL (already fetched into rootContent, with
// contentType as reported by the server) to dest in the given format. It
// builds the writer, constructs a Coordinator, and runs it to completion.
func StartDownload(ctx context.Context, pageURL *url.URL, rootContent []byte, contentType string, dest string, format Format, cfg Config) error {
	dest = expandUserPath(dest)

	doc, err := ParseDocument(rootContent)
	if err != nil {
		return fmt.Errorf("archiver: parsing page: %w", err)
	}

	var w Writer
	switch format {
	case FormatFolder:
		w = NewFolderWriter(rootContent, pageURL, contentType, dest)
	default:
		w = NewMHTMLWriter(rootContent, pageURL, contentType, dest)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	ratePerSec := cfg.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = float64(rate.Inf)
	}
	mgr, err := NewHTTPDownloadManager(ctx, concurrency, ratePerSec)
	if err != nil {
		return err
	}
	defer mgr.Close()

	coord := NewCoordinator(pageURL, doc, w, mgr, StructuredScanner{}, cfg.Notify)
	if cfg.OnAsset != nil {
		coord.OnAsset(cfg.OnAsset)
	}
	if err := coord.Run(ctx); err != nil {
		return err
	}
	return mgr.Wait()
}

// StartDownloadChecked is StartDownload, but first asks the user to
// confirm overwriting dest if it already exists as a regular file.
func StartDownloadChecked(ctx context.Context, pageURL *url.URL, rootContent []byte, contentType string, dest string, format Format, cfg Config) error {
	dest = expandUserPath(dest)

	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		confirm := cfg.Confirm
		if confirm == nil {
			confirm = func(string) bool { return true }
		}
		if !confirm(dest) {
			return nil
		}
	}
	return StartDownload(ctx, pageURL, rootContent, contentType, dest, format, cfg)
}

// expandUserPath expands a leading "~" to the user's home directory.
func expandUserPath(dest string) string {
	if dest == "" || dest[0] != '~' {
		return dest
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dest
	}
	if dest == "~" {
		return home
	}
	if len(dest) > 1 && dest[1] == '/' {
		return home + dest[1:]
	}
	return dest
}

package archiver

import (
	"os"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
)

// Progress is a nil-safe wrapper around progressbar.ProgressBar. A nil
// *Progress is valid; every method is a no-op, so callers that don't want
// a progress bar (tests, non-interactive output) can pass nil around
// freely instead of branching on whether one was requested.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewAssetProgress creates a bar for the asset-fetch phase of an archive
// run. The total is unknown up front (assets are discovered while the DOM
// pass runs), so the bar is indeterminate and counts completed assets; it
// stays so unless SetTotal is called.
func NewAssetProgress() *Progress {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription(colorstring.Color("[green]Archiving page[reset]")),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			_, _ = os.Stderr.WriteString("\n")
		}),
	)
	return &Progress{bar: bar}
}

// SetTotal fixes the bar's total, turning it into a determinate bar.
func (p *Progress) SetTotal(total int) {
	if p == nil {
		return
	}
	p.bar.ChangeMax(total)
}

// Inc advances the bar by one completed asset.
func (p *Progress) Inc() {
	if p == nil {
		return
	}
	_ = p.bar.Add(1)
}

// Finish marks the bar complete and moves output to a new line.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}

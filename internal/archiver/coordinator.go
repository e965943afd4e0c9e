package archiver

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"
)

// lifecycleState tracks a Coordinator's single-use run.
type lifecycleState int

const (
	stateFresh lifecycleState = iota
	stateRunning
	stateFinished
)

// Coordinator drives one page archive: it walks the DOM once, rewriting
// every asset reference through the Writer and enqueueing a fetch for it,
// then drains those fetches as they complete until nothing is left
// pending, at which point it finalizes the archive exactly once.
//
// A Coordinator is single-use: Run must be called exactly once.
type Coordinator struct {
	pageURL *url.URL
	doc     Document
	writer  Writer
	manager DownloadManager
	scanner Scanner
	notify  func(msg string)
	// onAsset, if set, is called once per asset fetch that reaches a
	// terminal state (success or error) — the CLI uses it to drive a
	// progress bar.
	onAsset func()

	mu         sync.Mutex
	state      lifecycleState
	domPassed  bool // true once domPass + SetRootContent have run
	loaded     map[string]bool
	pending    map[string]*pendingFetch
	errs       []error
}

type pendingFetch struct {
	url    *url.URL
	handle *Handle
	buf    *bytes.Buffer
}

// NewCoordinator builds a Coordinator for one archive run. scanner may be
// nil, in which case a RegexScanner is used.
func NewCoordinator(pageURL *url.URL, doc Document, w Writer, mgr DownloadManager, scanner Scanner, notify func(msg string)) *Coordinator {
	if scanner == nil {
		scanner = RegexScanner{}
	}
	if notify == nil {
		notify = func(string) {}
	}
	return &Coordinator{
		pageURL: pageURL,
		doc:     doc,
		writer:  w,
		manager: mgr,
		scanner: scanner,
		notify:  notify,
		loaded:  make(map[string]bool),
		pending: make(map[string]*pendingFetch),
	}
}

// OnAsset registers a callback invoked once per asset fetch that finishes
// or errors, for progress reporting.
func (c *Coordinator) OnAsset(fn func()) {
	c.onAsset = fn
}

// Errors returns every per-asset AssetFetchError/DecodeWarning collected
// during the run, in the order they occurred, followed by the writer's
// Write error if Write failed (Run does not return that error). Only
// meaningful after Run returns.
func (c *Coordinator) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Run executes the full archive: DOM pass, then draining until
// finalization. It blocks until the writer has finished (or a fatal error
// occurs). A Coordinator may only be run once.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateFresh {
		c.mu.Unlock()
		return &UsageError{Msg: "coordinator already used"}
	}
	c.state = stateRunning
	c.mu.Unlock()

	c.domPass(ctx)

	root, err := c.doc.Serialize()
	if err != nil {
		return fmt.Errorf("archiver: serializing document: %w", err)
	}
	c.writer.SetRootContent(root)

	c.mu.Lock()
	c.domPassed = true
	c.mu.Unlock()

	c.collectZombies()

	// Block until every fetch this run ever issues has been accounted
	// for. New fetches can still be enqueued from completion callbacks
	// (CSS imports), so this loop re-checks after each wait.
	for {
		c.mu.Lock()
		finished := c.state == stateFinished
		empty := len(c.pending) == 0
		c.mu.Unlock()
		if finished || empty {
			break
		}
		c.waitAny(ctx)
		c.collectZombies()
	}

	c.mu.Lock()
	finished := c.state == stateFinished
	c.mu.Unlock()
	if !finished {
		c.finalize()
	}
	return nil
}

// waitAny blocks until the manager reports all outstanding work done; the
// coordinator then re-derives progress from each handle's Done flag. This
// mirrors the single-threaded event-loop model of the system this
// coordinator's callback wiring is modeled on: suspension happens only
// between issuing a fetch and its completion arriving.
func (c *Coordinator) waitAny(ctx context.Context) {
	_ = ctx
	_ = c.manager.Wait()
}

// domPass implements phase 1: walk link/script/img, style, and [style]
// elements in document order, rewriting references and enqueueing fetches.
func (c *Coordinator) domPass(ctx context.Context) {
	for _, el := range c.doc.Find("link", "script", "img") {
		attr := "src"
		raw, ok := el.Attr(attr)
		if !ok {
			attr = "href"
			raw, ok = el.Attr(attr)
		}
		if !ok || skippableRef(raw) {
			continue
		}
		abs, err := ParseAbsolute(c.pageURL, raw)
		if err != nil {
			continue
		}
		rewritten := c.writer.RewriteURL(abs, nil)
		el.SetAttr(attr, rewritten.String())
		c.fetch(ctx, abs)
	}

	for _, el := range c.doc.Find("style") {
		if t, ok := el.Attr("type"); ok && t != "" && t != "text/css" {
			continue
		}
		rewrite := func(ref string) string {
			return c.rewriteAndTrack(ctx, ref, c.pageURL)
		}
		newText, _ := c.scanner.Scan(el.InnerText(), false, rewrite)
		el.SetInnerText(newText)
	}

	for _, el := range c.doc.Find("[style]") {
		val, ok := el.Attr("style")
		if !ok {
			continue
		}
		rewrite := func(ref string) string {
			return c.rewriteAndTrack(ctx, ref, c.pageURL)
		}
		newText, _ := c.scanner.Scan(val, true, rewrite)
		el.SetAttr("style", newText)
	}
}

// rewriteAndTrack resolves ref against base, passes it through the
// writer, enqueues a fetch, and returns the rewritten string for splicing
// back into the CSS/attribute text.
func (c *Coordinator) rewriteAndTrack(ctx context.Context, ref string, base *url.URL) string {
	if skippableRef(ref) {
		return ref
	}
	abs, err := ParseAbsolute(base, ref)
	if err != nil {
		return ref
	}
	rewritten := c.writer.RewriteURL(abs, base)
	c.fetch(ctx, abs)
	return rewritten.String()
}

// fetch enqueues a download for target, unless it's a data: URL or was
// already requested.
func (c *Coordinator) fetch(ctx context.Context, target *url.URL) {
	if IsDataURL(target) {
		return
	}
	key := target.String()

	c.mu.Lock()
	if c.loaded[key] {
		c.mu.Unlock()
		return
	}
	c.loaded[key] = true
	c.mu.Unlock()

	buf := &bytes.Buffer{}
	handle := c.manager.Get(ctx, target, buf, true)

	c.mu.Lock()
	c.pending[key] = &pendingFetch{url: target, handle: handle, buf: buf}
	c.mu.Unlock()

	handle.OnFinished(func() { c.onFinish(ctx, key) })
	handle.OnError(func() { c.onError(key) })
}

// collectZombies synthesizes completion for any pending fetch whose
// handle already finished before its callbacks were wired, then finalizes
// if nothing is left pending.
func (c *Coordinator) collectZombies() {
	c.mu.Lock()
	var handles []*Handle
	for _, pf := range c.pending {
		handles = append(handles, pf.handle)
	}
	c.mu.Unlock()

	for _, h := range handles {
		if h.Done() {
			h.Synthesize()
		}
	}

	c.finalizeIfDrained()
}

// onFinish implements the "on finish" transition from §4.5: CSS gets
// rescanned and rewritten in place, then the bytes are handed to the
// writer.
func (c *Coordinator) onFinish(ctx context.Context, key string) {
	c.mu.Lock()
	pf, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	mime := mimeFromHeaders(pf.handle.Headers())
	content := pf.buf.Bytes()

	if strings.EqualFold(mime, "text/css") {
		text, valid := decodeUTF8(content)
		if !valid {
			c.mu.Lock()
			c.errs = append(c.errs, &DecodeWarning{URL: key, Charset: "utf-8"})
			c.mu.Unlock()
		}
		rewrite := func(ref string) string {
			return c.rewriteAndTrack(ctx, ref, pf.url)
		}
		newText, _ := c.scanner.Scan(text, false, rewrite)
		content = []byte(newText)
	}

	c.writer.AddFile(pf.url, content, mime)
	if c.onAsset != nil {
		c.onAsset()
	}

	c.finalizeIfDrained()
}

// onError implements the "on error" transition: the slot is still
// registered in the archive, as an empty placeholder, so every fetched
// URL is accounted for even when it failed.
func (c *Coordinator) onError(key string) {
	c.mu.Lock()
	pf, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	var fetchErr error
	if err := pf.handle.Err(); err != nil {
		fetchErr = &AssetFetchError{URL: key, Err: err}
	} else {
		fetchErr = &AssetFetchError{URL: key, Err: fmt.Errorf("cancelled")}
	}
	c.mu.Lock()
	c.errs = append(c.errs, fetchErr)
	c.mu.Unlock()
	log.Printf("archiver: %v", fetchErr)

	c.writer.AddFile(pf.url, nil, "")
	if c.onAsset != nil {
		c.onAsset()
	}

	c.finalizeIfDrained()
}

// finalizeIfDrained finalizes when the pending set is empty, provided the
// DOM pass has already completed — per the ordering guarantee that
// finalization only happens after the DOM pass has finished enqueueing
// every fetch it's going to enqueue.
func (c *Coordinator) finalizeIfDrained() {
	c.mu.Lock()
	ready := c.domPassed && len(c.pending) == 0 && c.state != stateFinished
	c.mu.Unlock()
	if ready {
		c.finalize()
	}
}

// finalize is one-shot: it writes the archive and notifies the caller.
// Safe to call multiple times; only the first call has any effect.
func (c *Coordinator) finalize() {
	c.mu.Lock()
	if c.state == stateFinished {
		c.mu.Unlock()
		return
	}
	c.state = stateFinished
	c.mu.Unlock()

	if err := c.writer.Write(); err != nil {
		c.mu.Lock()
		c.errs = append(c.errs, err)
		c.mu.Unlock()
		return
	}
	c.notify(fmt.Sprintf("archived to %s", c.writer.Dest()))
}

// mimeFromHeaders decodes the Content-Type header per §4.5: the raw header
// value, lowercased, with no charset-parameter stripping — a response
// declaring "text/css; charset=utf-8" is not text/css under the spec's
// literal equality check, and the full value (charset parameter included)
// is what gets stored against the asset.
func mimeFromHeaders(h map[string][]string) string {
	if h == nil {
		return ""
	}
	var raw string
	for k, v := range h {
		if strings.EqualFold(k, "Content-Type") && len(v) > 0 {
			raw = v[0]
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// decodeUTF8 returns data decoded as UTF-8; if data isn't valid UTF-8, it
// falls back to utf8.RuneError substitution and reports false so the
// caller can record a DecodeWarning.
func decodeUTF8(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), true
	}
	var b strings.Builder
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		b.WriteRune(r)
		i += size
	}
	return b.String(), false
}

package archiver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handle is what DownloadManager.Get returns: a live reference to an
// in-flight (or already-finished) fetch. The coordinator wires its
// completion callbacks onto it, and separately polls Done for the
// zombie-collection pass described in the download coordinator's draining
// phase.
type Handle struct {
	URL    *url.URL
	Buffer *bytes.Buffer

	mu         sync.Mutex
	done       bool
	delivered  bool
	cancelled  bool
	err        error
	headers    http.Header
	onFinished func()
	onError    func()
}

// Done reports whether the fetch has completed (successfully, with an
// error, or by cancellation).
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Err returns the terminal error, if any. Only meaningful once Done.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Headers returns the response's header set. Only meaningful once Done and
// Err is nil.
func (h *Handle) Headers() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers
}

// Cancel marks the handle cancelled. HTTPDownloadManager checks the mark
// just before it starts the request and then routes the fetch through the
// error path; a request already under way is not interrupted. Safe to call
// at any time; a no-op once the fetch has already completed.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	h.mu.Unlock()
}

// OnFinished registers the callback invoked on a successful fetch. Exactly
// one of OnFinished's or OnError's callback fires, at most once, either
// synchronously here (if the fetch already completed) or later from the
// fetch goroutine.
func (h *Handle) OnFinished(fn func()) {
	h.subscribe(fn, nil)
}

// OnError registers the callback invoked on a failed or cancelled fetch.
func (h *Handle) OnError(fn func()) {
	h.subscribe(nil, fn)
}

func (h *Handle) subscribe(onFinished, onError func()) {
	h.mu.Lock()
	if onFinished != nil {
		h.onFinished = onFinished
	}
	if onError != nil {
		h.onError = onError
	}
	var fire func()
	if h.done && !h.delivered {
		if h.err != nil {
			fire = h.onError
		} else {
			fire = h.onFinished
		}
		if fire != nil {
			h.delivered = true
		}
	}
	h.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// complete marks the handle terminal and fires the matching callback if it
// is already wired. If it has not been registered yet — the fetch raced
// ahead of the coordinator's OnFinished/OnError calls — nothing fires here;
// the later registration or Synthesize (driven by collectZombies) delivers it.
func (h *Handle) complete(err error, headers http.Header) {
	h.mu.Lock()
	h.done = true
	h.err = err
	h.headers = headers
	var fire func()
	if err != nil {
		fire = h.onError
	} else {
		fire = h.onFinished
	}
	if fire != nil {
		h.delivered = true
	}
	h.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Synthesize fires the stored completion callback for a handle that
// finished before its callbacks were wired. A no-op if not yet done, or
// already delivered.
func (h *Handle) Synthesize() {
	h.mu.Lock()
	if !h.done || h.delivered {
		h.mu.Unlock()
		return
	}
	fire := h.onFinished
	if h.err != nil {
		fire = h.onError
	}
	if fire != nil {
		h.delivered = true
	}
	h.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// DownloadManager fetches URLs into caller-supplied buffers. autoRemove
// signals that the manager may discard its own copy of the data once
// delivered, since the coordinator owns buf from then on.
type DownloadManager interface {
	Get(ctx context.Context, target *url.URL, buf *bytes.Buffer, autoRemove bool) *Handle
	// Wait blocks until every outstanding fetch has completed, for a
	// clean shutdown after the archive finishes (or aborts).
	Wait() error
}

// HTTPDownloadManager is the default DownloadManager: a rate-limited HTTP
// client dispatching fetches across a bounded goroutine pool.
type HTTPDownloadManager struct {
	client  *http.Client
	limiter *rate.Limiter
	pool    *ants.Pool
	group   *errgroup.Group
	ctx     context.Context

	closeOnce sync.Once
}

// NewHTTPDownloadManager builds a manager that runs at most concurrency
// fetches at once, throttled to ratePerSec requests/second.
func NewHTTPDownloadManager(ctx context.Context, concurrency int, ratePerSec float64) (*HTTPDownloadManager, error) {
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("archiver: creating fetch pool: %w", err)
	}
	group, gctx := errgroup.WithContext(ctx)
	return &HTTPDownloadManager{
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), concurrency),
		pool:    pool,
		group:   group,
		ctx:     gctx,
	}, nil
}

// Get implements DownloadManager.
func (m *HTTPDownloadManager) Get(ctx context.Context, target *url.URL, buf *bytes.Buffer, autoRemove bool) *Handle {
	h := &Handle{URL: target, Buffer: buf}

	// ants.Pool.Submit only hands the task off to a worker and returns
	// immediately; it does not wait for the task to run. The errgroup
	// goroutine below blocks on done so that group.Wait (and therefore
	// Wait) only returns once the fetch has actually finished, not once
	// it's merely been queued.
	m.group.Go(func() error {
		done := make(chan struct{})
		err := m.pool.Submit(func() {
			defer close(done)

			h.mu.Lock()
			cancelled := h.cancelled
			h.mu.Unlock()
			if cancelled {
				h.complete(fmt.Errorf("archiver: fetch of %s cancelled", target), nil)
				return
			}

			if err := m.limiter.Wait(ctx); err != nil {
				h.complete(err, nil)
				return
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
			if err != nil {
				h.complete(err, nil)
				return
			}
			resp, err := m.client.Do(req)
			if err != nil {
				h.complete(err, nil)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				h.complete(fmt.Errorf("archiver: GET %s: HTTP %d", target, resp.StatusCode), nil)
				return
			}
			if _, err := io.Copy(buf, resp.Body); err != nil {
				h.complete(err, nil)
				return
			}
			h.complete(nil, resp.Header.Clone())
		})
		if err != nil {
			h.complete(err, nil)
			return nil
		}
		<-done
		return nil
	})

	return h
}

// Wait implements DownloadManager: blocks until every fetch dispatched so
// far — including ones enqueued from completion callbacks while Wait was
// already blocking — has actually finished. It does not release the pool;
// more fetches may still be submitted after Wait returns. Call Close once
// the archive has truly finalized.
func (m *HTTPDownloadManager) Wait() error {
	return m.group.Wait()
}

// Close releases the fetch pool. Safe to call only after the caller knows
// no further Get calls will be made.
func (m *HTTPDownloadManager) Close() {
	m.closeOnce.Do(func() {
		m.pool.Release()
	})
}

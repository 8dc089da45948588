package render

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/render/native"
)

// defaultSurfaceSize is the renderer surface a freshly spawned worker
// allocates before its first job resizes it.
const defaultSurfaceSize = 512

// poolMetrics are the go-ethereum/metrics counters shared across every
// ratioPool: total renders, poisoned-worker replacements, and
// checkout overloads.
var poolMetrics = newPoolMetrics()

type metricsSet struct {
	reg       metrics.Registry
	rendered  metrics.Counter
	poisoned  metrics.Counter
	overloads metrics.Counter
}

func newPoolMetrics() *metricsSet {
	metrics.Enabled = true
	reg := metrics.NewRegistry()
	m := &metricsSet{
		reg:       reg,
		rendered:  metrics.NewCounter(),
		poisoned:  metrics.NewCounter(),
		overloads: metrics.NewCounter(),
	}
	_ = reg.Register("render.pool.rendered.count", m.rendered)
	_ = reg.Register("render.pool.poisoned.count", m.poisoned)
	_ = reg.Register("render.pool.overloads.count", m.overloads)
	return m
}

// StyleProvider resolves a style id to its render-view JSON. Kept as
// a narrow interface, rather than importing the styles package
// directly, so render has no dependency on style-loading mechanics —
// only on the bytes it needs.
type StyleProvider interface {
	GetRender(id string) ([]byte, error)
}

type workItem struct {
	ctx      context.Context
	job      Job
	resultCh chan jobResult
}

type jobResult struct {
	result *Result
	err    error
}

// worker is one dedicated OS-thread-pinned renderer: jobs run on a
// worker thread, never on a pooled task goroutine.
type worker struct {
	id   int
	jobs chan workItem
	done chan struct{}
}

// ratioPool is the fixed set of worker threads serving one pixel
// ratio.
type ratioPool struct {
	pixelRatio    int
	queueDepth    int
	poisonThresh  int
	styles        StyleProvider
	logger        *slog.Logger

	mu      sync.RWMutex
	workers []*worker
	nextID  int
	closing bool
}

// Pool is the top-level renderer pool: one ratioPool per clamped
// pixel ratio, created lazily on first demand.
type Pool struct {
	cfg     config.RenderConfig
	styles  StyleProvider
	logger  *slog.Logger

	mu     sync.Mutex
	ratios map[int]*ratioPool
}

// NewPool constructs an empty Pool. ratioPools (and their worker
// threads) are created on first Render call for a given pixel ratio.
func NewPool(cfg config.RenderConfig, styles StyleProvider) *Pool {
	return &Pool{
		cfg:    cfg,
		styles: styles,
		logger: slog.With("d", "render-pool"),
		ratios: make(map[int]*ratioPool),
	}
}

// Render is the scoped-acquisition entrypoint: it checks a worker
// out, runs job, and always returns the worker to service — there is
// no separate release call because the worker never leaves the
// pool's ownership.
func (p *Pool) Render(ctx context.Context, pixelRatio int, job Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	ratio := ClampPixelRatio(pixelRatio)

	checkoutTimeout := time.Duration(p.cfg.CheckoutTimeoutMS) * time.Millisecond
	renderDeadline := time.Duration(p.cfg.RenderDeadlineMS) * time.Millisecond
	deadlineCtx, cancel := context.WithTimeout(ctx, checkoutTimeout+renderDeadline)
	defer cancel()

	rp := p.ratioPoolFor(ratio)
	return rp.submit(deadlineCtx, job)
}

func (p *Pool) ratioPoolFor(ratio int) *ratioPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rp, ok := p.ratios[ratio]; ok {
		return rp
	}
	rp := &ratioPool{
		pixelRatio:   ratio,
		queueDepth:   p.cfg.QueueDepthPerRatio,
		poisonThresh: p.cfg.PoisonThreshold,
		styles:       p.styles,
		logger:       p.logger.With("pixel_ratio", ratio),
	}
	for i := 0; i < p.cfg.PoolSizePerRatio; i++ {
		rp.spawnWorker()
	}
	p.ratios[ratio] = rp
	return rp
}

// Close stops every ratioPool's workers by closing their queues. It
// does not wait for them: each worker renders the jobs already queued
// to it and then exits.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rp := range p.ratios {
		rp.close()
	}
}

func (rp *ratioPool) spawnWorker() *worker {
	rp.mu.Lock()
	rp.nextID++
	id := rp.nextID
	rp.mu.Unlock()

	w := &worker{id: id, jobs: make(chan workItem, rp.queueDepth), done: make(chan struct{})}

	rp.mu.Lock()
	rp.workers = append(rp.workers, w)
	rp.mu.Unlock()

	go rp.runWorker(w)
	go rp.supervise(w)
	return w
}

// supervise waits for a worker to exit (poisoned or closed) and
// spawns its replacement, unless the pool is shutting down — a
// poisoned worker is replaced proactively so queue capacity is never
// permanently reduced.
func (rp *ratioPool) supervise(w *worker) {
	<-w.done
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.closing {
		return
	}
	for i, existing := range rp.workers {
		if existing == w {
			rp.workers = append(rp.workers[:i], rp.workers[i+1:]...)
			break
		}
	}
	rp.logger.Warn("renderer worker replaced after poisoning", "worker", w.id)
	rp.spawnWorkerLocked()
}

// spawnWorkerLocked is spawnWorker's body for callers already
// holding rp.mu; it re-acquires nothing and must not be called from
// spawnWorker itself (which takes the lock separately above).
func (rp *ratioPool) spawnWorkerLocked() {
	rp.nextID++
	id := rp.nextID
	w := &worker{id: id, jobs: make(chan workItem, rp.queueDepth), done: make(chan struct{})}
	rp.workers = append(rp.workers, w)
	go rp.runWorker(w)
	go rp.supervise(w)
}

func (rp *ratioPool) close() {
	rp.mu.Lock()
	rp.closing = true
	workers := rp.workers
	rp.workers = nil
	rp.mu.Unlock()
	for _, w := range workers {
		close(w.jobs)
	}
}

// submit picks the least-loaded worker (shortest queue, round-robin
// on ties) and blocks for a result or the context deadline.
func (rp *ratioPool) submit(ctx context.Context, job Job) (*Result, error) {
	rp.mu.RLock()
	workers := rp.workers
	rp.mu.RUnlock()
	if len(workers) == 0 {
		return nil, apperr.New(apperr.KindFatal, "renderer pool has no workers")
	}

	w := leastLoaded(workers)
	item := workItem{ctx: ctx, job: job, resultCh: make(chan jobResult, 1)}

	select {
	case w.jobs <- item:
	default:
		poolMetrics.overloads.Inc(1)
		return nil, apperr.New(apperr.KindOverload, "renderer queue full")
	}

	select {
	case res := <-item.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		poolMetrics.rendered.Inc(1)
		return res.result, nil
	case <-ctx.Done():
		return nil, apperr.New(apperr.KindTimeout, "render checkout/deadline exceeded")
	}
}

var roundRobinCounter int
var roundRobinMu sync.Mutex

func leastLoaded(workers []*worker) *worker {
	best := workers[0]
	bestLen := len(best.jobs)
	tieCount := 1
	for _, w := range workers[1:] {
		l := len(w.jobs)
		switch {
		case l < bestLen:
			best, bestLen, tieCount = w, l, 1
		case l == bestLen:
			tieCount++
		}
	}
	if tieCount == 1 {
		return best
	}
	// Round-robin among tied candidates.
	roundRobinMu.Lock()
	idx := roundRobinCounter % tieCount
	roundRobinCounter++
	roundRobinMu.Unlock()
	seen := 0
	for _, w := range workers {
		if len(w.jobs) == bestLen {
			if seen == idx {
				return w
			}
			seen++
		}
	}
	return best
}

// runWorker is the body of one dedicated renderer thread: it pins the
// OS thread, initializes the native event loop exactly once, owns one
// handle for its lifetime, and tears everything down on exit.
func (rp *ratioPool) runWorker(w *worker) {
	runtimeLockThread()
	defer runtime.UnlockOSThread()

	if err := native.EnsureThreadLoop(); err != nil {
		rp.logger.Error("failed to init renderer thread loop", "worker", w.id, "error", err)
		close(w.done)
		return
	}
	defer native.TeardownThreadLoop()

	h, err := newHandle(rp.pixelRatio, defaultSurfaceSize, defaultSurfaceSize)
	if err != nil {
		rp.logger.Error("failed to create renderer handle", "worker", w.id, "error", err)
		close(w.done)
		return
	}
	defer h.close()

	for item := range w.jobs {
		res, rerr := rp.renderOne(h, item.job)
		select {
		case item.resultCh <- jobResult{result: res, err: rerr}:
		case <-item.ctx.Done():
		}

		if rerr == nil {
			h.consecutiveFailures = 0
			continue
		}
		if isPoisoning(rerr) {
			h.consecutiveFailures++
			if h.consecutiveFailures >= rp.poisonThresh {
				poolMetrics.poisoned.Inc(1)
				rp.logger.Warn("renderer handle poisoned, terminating worker", "worker", w.id, "failures", h.consecutiveFailures)
				close(w.done)
				return
			}
		}
	}
	close(w.done)
}

func (rp *ratioPool) renderOne(h *handle, job Job) (*Result, error) {
	renderJSON, err := rp.styles.GetRender(job.StyleID)
	if err != nil {
		return nil, err
	}
	return h.render(job, renderJSON)
}

// isPoisoning reports whether err should count toward a handle's
// poison threshold: a RenderFailed, Fatal, or unrecognized (non-apperr)
// failure marks the handle for replacement once the threshold is
// reached.
func isPoisoning(err error) bool {
	e, ok := apperr.As(err)
	if !ok {
		return true // unrecognized failure: treat conservatively as Unknown.
	}
	return e.Kind == apperr.KindRenderFailed || e.Kind == apperr.KindFatal
}

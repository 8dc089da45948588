package render

import (
	"fmt"
	"runtime"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/render/native"
)

// handle owns one native.Frontend + native.Map pair, pinned to the
// worker goroutine that created it. It is never touched from any
// other goroutine.
type handle struct {
	pixelRatio int
	frontend   *native.Frontend
	m          *native.Map

	curWidth, curHeight int
	consecutiveFailures int
}

// newHandle creates a frontend+map pair sized for an initial
// size/pixel-ratio. The caller must already be running on a
// thread-locked goroutine with its event loop initialized
// (native.EnsureThreadLoop called once, prior).
func newHandle(pixelRatio, width, height int) (*handle, error) {
	fe, err := native.NewFrontend(width, height, float64(pixelRatio))
	if err != nil {
		return nil, fmt.Errorf("render: creating frontend: %w", err)
	}
	m, err := native.NewMap(fe, native.ModeTile)
	if err != nil {
		fe.Close()
		return nil, fmt.Errorf("render: creating map: %w", err)
	}
	return &handle{pixelRatio: pixelRatio, frontend: fe, m: m, curWidth: width, curHeight: height}, nil
}

// close destroys the native map and frontend. Must run on the
// owning thread.
func (h *handle) close() {
	if h.m != nil {
		h.m.Close()
	}
	if h.frontend != nil {
		h.frontend.Close()
	}
}

// loadStyleIfNeeded skips Map.LoadStyle when the handle already has
// this exact style loaded.
func (h *handle) loadStyleIfNeeded(styleID string, renderJSON []byte) error {
	if h.m.LoadedStyle() == styleID {
		return nil
	}
	if err := h.m.LoadStyle(styleID, renderJSON); err != nil {
		return apperr.Wrap(apperr.KindRenderFailed, "loading style into renderer", err)
	}
	return nil
}

// render executes one Job against this handle, resizing the surface
// first if needed.
func (h *handle) render(job Job, renderJSON []byte) (*Result, error) {
	if err := h.loadStyleIfNeeded(job.StyleID, renderJSON); err != nil {
		return nil, err
	}

	w, ht := job.Size.DevicePixels()
	if w != h.curWidth || ht != h.curHeight {
		if err := h.m.SetSize(w, ht); err != nil {
			return nil, apperr.Wrap(apperr.KindRenderFailed, "resizing renderer surface", err)
		}
		h.curWidth, h.curHeight = w, ht
	}

	if err := h.m.SetCamera(job.Camera); err != nil {
		return nil, apperr.Wrap(apperr.KindRenderFailed, "setting renderer camera", err)
	}

	img, err := h.m.RenderStill()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRenderFailed, "native render failed", err)
	}
	return &Result{RGBA: img.Pixels, Width: img.Width, Height: img.Height}, nil
}

// runtimeLockThread pins the calling worker goroutine to its OS
// thread; runWorker calls it before touching the native library.
func runtimeLockThread() { runtime.LockOSThread() }

// Package native is the safe Go wrapper around the headless MapLibre
// GL Native C ABI. It owns:
//
//   - thread affinity: each OS thread that calls into the C library
//     must have an initialized event-loop instance before any other
//     call; EnsureThreadLoop creates one for the calling thread and
//     TeardownThreadLoop releases it before the thread is unlocked.
//   - error translation: the C side returns an integer code and
//     leaves a message in thread-local storage that a later call can
//     overwrite, so every wrapped call captures the message
//     immediately after the C call returns.
//   - panic containment: no Go panic, and no C++ exception unwound
//     across the cgo boundary, ever reaches the caller as anything
//     but a typed Error.
//
// The shape here — narrow surface, typed errors, nothing shared
// across the FFI boundary except what's copied — mirrors a small,
// defensive wrapper around a foreign transport.
package native

/*
#cgo LDFLAGS: -lmbgl-core-c
#include <stdlib.h>
#include <string.h>

// mbgl_c.h is the headless-rendering C ABI this package binds to. It
// ships with the native MapLibre GL renderer this server is built
// against; declared here rather than included because the build
// environment supplies it via CGO_CFLAGS, not a vendored header.
typedef struct mbgl_frontend mbgl_frontend;
typedef struct mbgl_map mbgl_map;

extern int mbgl_loop_init(void);
extern void mbgl_loop_teardown(void);

extern mbgl_frontend* mbgl_frontend_create(int width, int height, double pixel_ratio);
extern void mbgl_frontend_destroy(mbgl_frontend* fe);

extern mbgl_map* mbgl_map_create(mbgl_frontend* fe, int mode_static);
extern void mbgl_map_destroy(mbgl_map* m);

extern int mbgl_map_load_style(mbgl_map* m, const char* json, size_t len);
extern int mbgl_map_set_camera(mbgl_map* m, double lat, double lon, double zoom, double bearing, double pitch);
extern int mbgl_map_set_size(mbgl_map* m, int width, int height);

extern int mbgl_map_render_still(mbgl_map* m, unsigned char** out_rgba, size_t* out_len, int* out_w, int* out_h);
extern void mbgl_image_free(unsigned char* buf);

extern const char* mbgl_last_error_message(void);
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Code mirrors the C ABI's integer error codes.
type Code int

const (
	CodeOK           Code = 0
	CodeInvalidArg   Code = 1
	CodeStyleParse   Code = 2
	CodeNotLoaded    Code = 3
	CodeRenderFailed Code = 4
	CodeTimeout      Code = 5
	CodeUnknown      Code = 6
)

// Error is the typed failure every wrapped call returns in place of
// a raw C integer code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("native render: %s (code %d): %s", e.Code.name(), e.Code, e.Message)
}

func (c Code) name() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArg:
		return "invalid_arg"
	case CodeStyleParse:
		return "style_parse"
	case CodeNotLoaded:
		return "not_loaded"
	case CodeRenderFailed:
		return "render_failed"
	case CodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// errFromCode captures the C side's thread-local error message
// immediately, before any subsequent C call can overwrite it.
func errFromCode(code C.int) *Error {
	if code == C.int(CodeOK) {
		return nil
	}
	msg := C.GoString(C.mbgl_last_error_message())
	return &Error{Code: Code(code), Message: msg}
}

// goroutineIsLocked is a documentation marker: every exported
// function in this package must only be called from a goroutine that
// has called runtime.LockOSThread, per the thread-affinity contract.
// There is no portable way to assert this at runtime in Go, so it is
// enforced by convention: render.Pool workers call EnsureThreadLoop
// once, immediately after locking their OS thread, and never again.

// EnsureThreadLoop initializes the calling OS thread's event-loop
// state. Call it once per thread, after runtime.LockOSThread, so a
// loop created for one OS thread does not end up torn down on
// another; the lock is not checked here (see the note above).
func EnsureThreadLoop() error {
	if code := C.mbgl_loop_init(); code != 0 {
		if err := errFromCode(code); err != nil {
			return err
		}
	}
	return nil
}

// TeardownThreadLoop releases the calling thread's event-loop state.
// Call it, still thread-locked, right before the goroutine returns
// and releases the OS thread (scoped acquisition with guaranteed
// release).
func TeardownThreadLoop() {
	C.mbgl_loop_teardown()
}

// Frontend owns a headless offscreen surface of a fixed size and
// pixel ratio.
type Frontend struct {
	ptr *C.mbgl_frontend
}

// NewFrontend creates an offscreen surface. Must run on a thread that
// has already called EnsureThreadLoop.
func NewFrontend(width, height int, pixelRatio float64) (*Frontend, error) {
	ptr := C.mbgl_frontend_create(C.int(width), C.int(height), C.double(pixelRatio))
	if ptr == nil {
		return nil, &Error{Code: CodeUnknown, Message: "frontend creation returned nil"}
	}
	return &Frontend{ptr: ptr}, nil
}

// Close destroys the frontend. Must run on the owning thread.
func (f *Frontend) Close() {
	if f.ptr != nil {
		C.mbgl_frontend_destroy(f.ptr)
		f.ptr = nil
	}
}

// Mode selects the native map's rendering mode.
type Mode int

const (
	ModeTile   Mode = 0
	ModeStatic Mode = 1
)

// Map is a native map instance bound to a Frontend.
type Map struct {
	ptr         *C.mbgl_map
	loadedStyle string // style id last successfully loaded, for the pool's style-caching skip
}

// NewMap creates a map tied to fe in the given mode.
func NewMap(fe *Frontend, mode Mode) (*Map, error) {
	staticFlag := C.int(0)
	if mode == ModeStatic {
		staticFlag = 1
	}
	ptr := C.mbgl_map_create(fe.ptr, staticFlag)
	if ptr == nil {
		return nil, &Error{Code: CodeUnknown, Message: "map creation returned nil"}
	}
	return &Map{ptr: ptr}, nil
}

// Close destroys the map. Must run on the owning thread.
func (m *Map) Close() {
	if m.ptr != nil {
		C.mbgl_map_destroy(m.ptr)
		m.ptr = nil
	}
}

// LoadStyle parses and loads a style document. render_still may only
// be called after this has succeeded at least once.
func (m *Map) LoadStyle(styleID string, json []byte) error {
	cJSON := C.CBytes(json)
	defer C.free(cJSON)
	code := C.mbgl_map_load_style(m.ptr, (*C.char)(cJSON), C.size_t(len(json)))
	if err := errFromCode(code); err != nil {
		return err
	}
	m.loadedStyle = styleID
	return nil
}

// LoadedStyle reports the id of the style most recently loaded onto
// this map, or "" if none. The render pool uses this to skip a
// redundant LoadStyle call.
func (m *Map) LoadedStyle() string { return m.loadedStyle }

// Camera is the (lon, lat, zoom, bearing, pitch) viewpoint.
type Camera struct {
	Lon, Lat, Zoom, Bearing, Pitch float64
}

// SetCamera positions the map.
func (m *Map) SetCamera(c Camera) error {
	code := C.mbgl_map_set_camera(m.ptr, C.double(c.Lat), C.double(c.Lon), C.double(c.Zoom), C.double(c.Bearing), C.double(c.Pitch))
	return errFromCode(code)
}

// SetSize resizes the target surface in device pixels.
func (m *Map) SetSize(width, height int) error {
	code := C.mbgl_map_set_size(m.ptr, C.int(width), C.int(height))
	return errFromCode(code)
}

// Image is one rendered RGBA frame. RenderStill copies the C-owned
// buffer into Pixels and releases it with Free before returning, so
// the caller holds only Go memory; calling Free again is a no-op.
type Image struct {
	buf    *C.uchar
	Pixels []byte // a Go-owned copy; safe to use after Free
	Width  int
	Height int
}

// Free releases the underlying C buffer. Safe to call multiple times.
func (img *Image) Free() {
	if img.buf != nil {
		C.mbgl_image_free(img.buf)
		img.buf = nil
	}
}

// RenderStill synchronously renders one frame. Not cancellable
// mid-call: callers enforce deadlines around checkout, not around
// this call itself.
func (m *Map) RenderStill() (img *Image, err error) {
	var cbuf *C.uchar
	var clen C.size_t
	var cw, ch C.int

	defer func() {
		if r := recover(); r != nil {
			// No panic crosses back into C; translate and report.
			err = &Error{Code: CodeUnknown, Message: fmt.Sprintf("panic during render: %v", r)}
		}
	}()

	code := C.mbgl_map_render_still(m.ptr, &cbuf, &clen, &cw, &ch)
	if rerr := errFromCode(code); rerr != nil {
		return nil, rerr
	}
	if cbuf == nil || clen == 0 {
		return nil, &Error{Code: CodeRenderFailed, Message: "renderer returned an empty buffer"}
	}

	result := &Image{buf: cbuf, Width: int(cw), Height: int(ch)}
	result.Pixels = make([]byte, int(clen))
	copy(result.Pixels, unsafe.Slice((*byte)(unsafe.Pointer(cbuf)), int(clen)))
	result.Free()
	return result, nil
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := New(KindUserInput, "bad zoom")
	if got, want := e.Error(), "UserInput: bad zoom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("connection refused")
	wrapped := Wrap(KindUpstream, "dialing postgis", cause)
	if got, want := wrapped.Error(), "Upstream: dialing postgis: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindIO, "reading tile", cause)
	if !errors.Is(wrapped, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause")
	}
}

func TestAs(t *testing.T) {
	base := New(KindNotFound, "unknown source")
	err := fmt.Errorf("loading style: %w", base)
	e, ok := As(err)
	if !ok {
		t.Fatalf("expected As to unwrap the *Error")
	}
	if e.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", e.Kind, KindNotFound)
	}

	if _, ok := As(errors.New("plain error")); ok {
		t.Errorf("expected As to fail on a non-apperr error")
	}
}

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUserInput:     http.StatusBadRequest,
		KindNotFound:      http.StatusNotFound,
		KindEmptyTile:     http.StatusNoContent,
		KindUpstream:      http.StatusBadGateway,
		KindRenderFailed:  http.StatusInternalServerError,
		KindFatal:         http.StatusInternalServerError,
		KindIO:            http.StatusInternalServerError,
		KindDecode:        http.StatusInternalServerError,
		KindTimeout:       http.StatusGatewayTimeout,
		KindOverload:      http.StatusServiceUnavailable,
		KindConfigInvalid: http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Errorf("Kind(%s).Status() = %d, want %d", kind, got, want)
		}
	}
}

func TestIsEmptyTile(t *testing.T) {
	if !IsEmptyTile(New(KindEmptyTile, "no tile at this zoom")) {
		t.Errorf("expected KindEmptyTile to report true")
	}
	if IsEmptyTile(New(KindNotFound, "unknown source")) {
		t.Errorf("expected KindNotFound to report false")
	}
	if IsEmptyTile(errors.New("plain error")) {
		t.Errorf("expected a non-apperr error to report false")
	}
}

package sources

import (
	"context"
	"testing"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/tiletype"
)

type fakeDriver struct {
	meta   tiletype.Metadata
	closed bool
}

func (f *fakeDriver) Metadata() tiletype.Metadata { return f.meta }

func (f *fakeDriver) ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error) {
	return &tiletype.Blob{Bytes: []byte("tile")}, nil
}

func (f *fakeDriver) ReadTileWithParams(ctx context.Context, coord tiletype.Coord, params map[string]string) (*tiletype.Blob, error) {
	return f.ReadTile(ctx, coord)
}

func (f *fakeDriver) Close() error {
	f.closed = true
	return nil
}

func newTestManager() (*Manager, *fakeDriver, *fakeDriver) {
	a := &fakeDriver{meta: tiletype.Metadata{ID: "a", Format: tiletype.FormatPBF, MinZoom: 0, MaxZoom: 10}}
	b := &fakeDriver{meta: tiletype.Metadata{ID: "b", Format: tiletype.FormatPNG, MinZoom: 0, MaxZoom: 5}}
	return &Manager{
		drivers: map[string]Driver{"a": a, "b": b},
		order:   []string{"a", "b"},
	}, a, b
}

func TestManagerGet(t *testing.T) {
	m, a, _ := newTestManager()
	d, err := m.Get("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != a {
		t.Errorf("Get(a) returned a different driver")
	}

	_, err = m.Get("missing")
	if err == nil {
		t.Fatalf("expected an error for an unknown source id")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindNotFound {
		t.Errorf("Kind = %v, want %v", e, apperr.KindNotFound)
	}
}

func TestManagerListPreservesOrder(t *testing.T) {
	m, _, _ := newTestManager()
	list := m.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() = %+v, want [a, b] in configuration order", list)
	}
}

func TestManagerMetadata(t *testing.T) {
	m, _, _ := newTestManager()
	meta, err := m.Metadata("b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.MaxZoom != 5 {
		t.Errorf("MaxZoom = %d, want 5", meta.MaxZoom)
	}
}

func TestManagerIDsSorted(t *testing.T) {
	m, _, _ := newTestManager()
	ids := m.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v, want [a b]", ids)
	}
}

func TestManagerCloseClosesEveryDriver(t *testing.T) {
	m, a, b := newTestManager()
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Errorf("expected Close to close every driver: a=%v b=%v", a.closed, b.closed)
	}
}

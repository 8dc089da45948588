// Package styles loads MapLibre style documents at startup and keeps
// two views of each: the client view, returned verbatim from
// /styles/{id}/style.json, and the render view, rewritten so the
// native renderer never needs to call back into this server's own
// TileJSON endpoints from inside its own event loop.
package styles

import (
	"fmt"
	"os"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/sources"
)

// style holds both views plus the raw bytes needed to serve the
// client view byte-identical to the configured file.
type style struct {
	id         string
	clientJSON []byte
	renderJSON []byte
}

// Manager is the read-only, post-startup id→style registry.
type Manager struct {
	styles map[string]*style
	order  []string
}

// Load parses every configured style and derives its render view
// against the source manager's current metadata. Any parse failure
// aborts the whole load.
func Load(cfgs []config.StyleConfig, src *sources.Manager) (*Manager, error) {
	m := &Manager{styles: make(map[string]*style, len(cfgs))}
	for _, c := range cfgs {
		raw, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("styles: reading %q: %w", c.ID, err)
		}
		rendered, err := Rewrite(raw, src)
		if err != nil {
			return nil, fmt.Errorf("styles: rewriting %q: %w", c.ID, err)
		}
		m.styles[c.ID] = &style{id: c.ID, clientJSON: raw, renderJSON: rendered}
		m.order = append(m.order, c.ID)
	}
	return m, nil
}

// GetClient returns the verbatim style document for the public
// /styles/{id}/style.json endpoint.
func (m *Manager) GetClient(id string) ([]byte, error) {
	s, ok := m.styles[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("unknown style %q", id))
	}
	return s.clientJSON, nil
}

// GetRender returns the self-contained render view consumed only by
// the render pipeline.
func (m *Manager) GetRender(id string) ([]byte, error) {
	s, ok := m.styles[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("unknown style %q", id))
	}
	return s.renderJSON, nil
}

// List returns the configured style ids in configuration order.
func (m *Manager) List() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Has reports whether id is a configured style.
func (m *Manager) Has(id string) bool {
	_, ok := m.styles[id]
	return ok
}

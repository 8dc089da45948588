package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/sources/cog"
	"github.com/mapcloud/tileserver/sources/mbtiles"
	"github.com/mapcloud/tileserver/sources/pmtileshttp"
	"github.com/mapcloud/tileserver/sources/pmtileslocal"
	"github.com/mapcloud/tileserver/sources/postgis"
	"github.com/mapcloud/tileserver/tiletype"
)

// lookups counts Get calls across every Manager in the process —
// effectively the source-dispatch rate, since every data-tile and
// driver-backed style request resolves through Get.
var lookups = registerLookupsCounter()

func registerLookupsCounter() metrics.Counter {
	metrics.Enabled = true
	c := metrics.NewCounter()
	_ = metrics.NewRegistry().Register("sources.lookups.count", c)
	return c
}

// Manager holds the id→Driver mapping for the process lifetime. It is
// built once at startup — every driver opens eagerly or startup
// aborts — and never mutated afterward; Get/List/Metadata are safe
// for concurrent use without additional locking because the map
// itself is read-only after Load returns.
type Manager struct {
	drivers map[string]Driver
	order   []string // insertion order, for stable List() output

	mu sync.RWMutex // guards nothing; no method takes it
}

// Load opens one driver per config.SourceConfig entry. Any driver
// that fails to open aborts the whole load: the caller is expected to
// treat a non-nil error as a fatal startup condition.
func Load(cfgs []config.SourceConfig) (*Manager, error) {
	m := &Manager{drivers: make(map[string]Driver, len(cfgs))}
	for _, c := range cfgs {
		d, err := open(c)
		if err != nil {
			return nil, fmt.Errorf("sources: opening %q (%s): %w", c.ID, c.Type, err)
		}
		m.drivers[c.ID] = d
		m.order = append(m.order, c.ID)
	}
	return m, nil
}

// open dispatches on the closed set of driver variants: one switch,
// no open interface extension.
func open(c config.SourceConfig) (Driver, error) {
	switch c.Type {
	case config.SourceTypePMTiles:
		if c.URL != "" {
			return pmtileshttp.Open(c)
		}
		return pmtileslocal.Open(c)
	case config.SourceTypeMBTiles:
		return mbtiles.Open(c)
	case config.SourceTypeCOG:
		return cog.Open(c)
	case config.SourceTypePostgres:
		return postgis.Open(c)
	default:
		return nil, apperr.New(apperr.KindConfigInvalid, fmt.Sprintf("unknown source type %q", c.Type))
	}
}

// Get returns the driver for id, or apperr.KindNotFound.
func (m *Manager) Get(id string) (Driver, error) {
	lookups.Inc(1)
	d, ok := m.drivers[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("unknown source %q", id))
	}
	return d, nil
}

// List returns every source's metadata in configuration order.
func (m *Manager) List() []tiletype.Metadata {
	out := make([]tiletype.Metadata, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.drivers[id].Metadata())
	}
	return out
}

// Metadata returns the metadata for one id.
func (m *Manager) Metadata(id string) (tiletype.Metadata, error) {
	d, err := m.Get(id)
	if err != nil {
		return tiletype.Metadata{}, err
	}
	return d.Metadata(), nil
}

// IDs returns the configured source ids, sorted, for diagnostics.
func (m *Manager) IDs() []string {
	ids := make([]string, 0, len(m.drivers))
	for id := range m.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases every driver's resources. Called once at shutdown.
func (m *Manager) Close() error {
	var firstErr error
	for _, id := range m.order {
		if err := m.drivers[id].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sources: closing %q: %w", id, err)
		}
	}
	return firstErr
}

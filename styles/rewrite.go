package styles

import (
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mapcloud/tileserver/sources"
)

// dataURLPattern recognizes the self-referential TileJSON url a style
// source uses to point back at this server's own /data endpoint.
var dataURLPattern = regexp.MustCompile(`^/data/([A-Za-z0-9_-]+)\.json$`)

// Rewrite derives the render view from a style document's raw bytes:
// every sources.<name>.url of the form /data/{id}.json is replaced by
// an inline tiles array pointing at this server's XYZ endpoint, with
// minzoom/maxzoom copied in from the source's driver metadata. The
// fast path (gjson) scans for any rewritable reference before paying
// for sjson's copy-and-mutate path; a style with no such references
// returns an unmodified copy of raw.
func Rewrite(raw []byte, src *sources.Manager) ([]byte, error) {
	sourcesVal := gjson.GetBytes(raw, "sources")
	if !sourcesVal.Exists() || !sourcesVal.IsObject() {
		return cloneBytes(raw), nil
	}

	type rewriteOp struct {
		key     string
		tiles   []string
		minzoom uint8
		maxzoom uint8
	}
	var ops []rewriteOp

	var walkErr error
	sourcesVal.ForEach(func(key, val gjson.Result) bool {
		urlVal := val.Get("url")
		if !urlVal.Exists() {
			return true
		}
		m := dataURLPattern.FindStringSubmatch(urlVal.String())
		if m == nil {
			return true
		}
		meta, err := src.Metadata(m[1])
		if err != nil {
			walkErr = fmt.Errorf("style source %q references unknown data source %q: %w", key.String(), m[1], err)
			return false
		}
		ops = append(ops, rewriteOp{
			key:     key.String(),
			tiles:   []string{fmt.Sprintf("/data/%s/{z}/{x}/{y}.%s", m[1], meta.Format.Extension())},
			minzoom: meta.MinZoom,
			maxzoom: meta.MaxZoom,
		})
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if len(ops) == 0 {
		return cloneBytes(raw), nil
	}

	out := cloneBytes(raw)
	var err error
	for _, op := range ops {
		out, err = sjson.DeleteBytes(out, fmt.Sprintf("sources.%s.url", op.key))
		if err != nil {
			return nil, fmt.Errorf("style rewrite: deleting url for %q: %w", op.key, err)
		}
		out, err = sjson.SetBytes(out, fmt.Sprintf("sources.%s.tiles", op.key), op.tiles)
		if err != nil {
			return nil, fmt.Errorf("style rewrite: setting tiles for %q: %w", op.key, err)
		}
		out, err = sjson.SetBytes(out, fmt.Sprintf("sources.%s.minzoom", op.key), op.minzoom)
		if err != nil {
			return nil, fmt.Errorf("style rewrite: setting minzoom for %q: %w", op.key, err)
		}
		out, err = sjson.SetBytes(out, fmt.Sprintf("sources.%s.maxzoom", op.key), op.maxzoom)
		if err != nil {
			return nil, fmt.Errorf("style rewrite: setting maxzoom for %q: %w", op.key, err)
		}
	}
	return out, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

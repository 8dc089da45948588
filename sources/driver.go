// Package sources owns the closed set of tile-archive driver variants
// (C1) and the flat id→driver registry that loads them from config
// and dispatches by source id (C2).
//
// The driver interface and dispatch-by-variant shape follow a
// polymorphism-by-closed-set idiom: each concrete driver lives in its
// own subpackage and is constructed from a config.SourceConfig at
// startup; nothing implements Driver outside this module.
package sources

import (
	"context"

	"github.com/mapcloud/tileserver/tiletype"
)

// Driver is the capability set every tile-source variant implements.
// ReadTileWithParams defaults to ignoring params and deferring to
// ReadTile for every variant except PostGIS function sources.
type Driver interface {
	// Metadata returns the cached TileJSON projection captured at Open.
	Metadata() tiletype.Metadata

	// ReadTile returns the tile payload at (z,x,y), apperr.KindEmptyTile
	// for a structurally-empty coordinate, apperr.KindNotFound when the
	// coordinate is outside the archive's content, or a typed failure.
	ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error)

	// ReadTileWithParams is the PostGIS-function extension point; all
	// other drivers implement it by ignoring params.
	ReadTileWithParams(ctx context.Context, coord tiletype.Coord, params map[string]string) (*tiletype.Blob, error)

	// Close releases any resources (file handles, connection pools)
	// held by the driver. Called once at shutdown.
	Close() error
}

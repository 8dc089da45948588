// Package postgis drives a user-supplied PostGIS SQL function source:
// (z integer, x integer, y integer[, params json]) returns bytea.
// Connection pooling is async and shared across all I/O tasks
// (jackc/pgx/v5's pgxpool), deliberately not conflated with the
// renderer pool's thread-pinned handles.
package postgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/groupcache/lru"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/tiletype"
)

// argShapeCacheSize bounds the per-driver cache of whether a
// function accepts a trailing params argument, to avoid probing
// pg_proc on every request.
const argShapeCacheSize = 64

// Driver is a sources.Driver backed by a PostGIS function. It is the
// one driver variant that honors ReadTileWithParams.
type Driver struct {
	id       string
	pool     *pgxpool.Pool
	schema   string
	function string
	meta     tiletype.Metadata

	argShapes *lru.Cache // query signature (with/without params) → bool, keyed by function name
}

// Open validates connectivity. The function's argument count is
// probed lazily, on the first read, and cached (functionTakesParams);
// the function's oid is not looked up or cached.
func Open(c config.SourceConfig) (*Driver, error) {
	pool, err := pgxpool.New(context.Background(), c.URL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "connecting to postgis source", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.KindFatal, "pinging postgis source", err)
	}

	schema := c.Schema
	if schema == "" {
		schema = "public"
	}
	function := c.Function
	if function == "" {
		function = c.ID
	}

	d := &Driver{
		id:        c.ID,
		pool:      pool,
		schema:    schema,
		function:  function,
		argShapes: lru.New(argShapeCacheSize),
	}
	d.meta = tiletype.Metadata{
		ID:          c.ID,
		Name:        c.Name,
		Attribution: c.Attribution,
		Format:      tiletype.FormatPBF,
		MinZoom:     0,
		MaxZoom:     22,
	}
	if c.MinZoom != nil {
		d.meta.MinZoom = uint8(*c.MinZoom)
	}
	if c.MaxZoom != nil {
		d.meta.MaxZoom = uint8(*c.MaxZoom)
	}
	return d, nil
}

func (d *Driver) Metadata() tiletype.Metadata { return d.meta }

func (d *Driver) ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error) {
	return d.ReadTileWithParams(ctx, coord, nil)
}

// ReadTileWithParams calls the configured function, passing params as
// a trailing jsonb/json argument when the function accepts one.
func (d *Driver) ReadTileWithParams(ctx context.Context, coord tiletype.Coord, params map[string]string) (*tiletype.Blob, error) {
	if !coord.Valid() {
		return nil, apperr.New(apperr.KindUserInput, "tile coordinate out of range")
	}

	takesParams := d.functionTakesParams(ctx)

	var data []byte
	var err error
	if takesParams {
		paramsJSON, jsonErr := json.Marshal(params)
		if jsonErr != nil {
			return nil, apperr.Wrap(apperr.KindUserInput, "marshalling postgis params", jsonErr)
		}
		q := fmt.Sprintf("SELECT %s.%s($1, $2, $3, $4)", d.schema, d.function)
		err = d.pool.QueryRow(ctx, q, coord.Z, coord.X, coord.Y, paramsJSON).Scan(&data)
	} else {
		q := fmt.Sprintf("SELECT %s.%s($1, $2, $3)", d.schema, d.function)
		err = d.pool.QueryRow(ctx, q, coord.Z, coord.X, coord.Y).Scan(&data)
	}

	switch {
	case err != nil && isNoRows(err):
		return nil, apperr.New(apperr.KindNotFound, "function returned no row")
	case err != nil:
		// Single attempt — no retry; the caller decides whether to retry.
		return nil, apperr.Wrap(apperr.KindUpstream, "calling postgis tile function", err)
	case len(data) == 0:
		return nil, apperr.New(apperr.KindEmptyTile, "function returned empty payload")
	}

	return &tiletype.Blob{
		Bytes:       data,
		ContentType: d.meta.Format.ContentType(),
		Encoding:    tiletype.EncodingIdentity,
	}, nil
}

// functionTakesParams lazily probes pg_proc for the function's arity
// and caches the result for the driver's lifetime.
func (d *Driver) functionTakesParams(ctx context.Context) bool {
	if cached, ok := d.argShapes.Get(d.function); ok {
		return cached.(bool)
	}

	var nargs int
	q := `SELECT pronargs FROM pg_proc p JOIN pg_namespace n ON n.oid = p.pronamespace WHERE n.nspname = $1 AND p.proname = $2 LIMIT 1`
	err := d.pool.QueryRow(ctx, q, d.schema, d.function).Scan(&nargs)
	takesParams := err == nil && nargs >= 4
	d.argShapes.Add(d.function, takesParams)
	return takesParams
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

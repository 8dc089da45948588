// Package mbtiles drives a SQLite-backed MBTiles archive. Tiles live
// in tiles(zoom_level,tile_column,tile_row,tile_data) under the TMS
// y-axis convention; see tiletype.Coord.FlippedY for the XYZ↔TMS
// conversion, its own inverse.
package mbtiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"runtime"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/tiletype"
)

const selectTileSQL = `SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`

// Driver is a sources.Driver backed by an MBTiles SQLite archive. The
// *sql.DB is a connection pool sized to runtime.NumCPU(); it does not
// follow any configured worker count. selectStmt is prepared once
// against the pool and reused
// for every read, so database/sql fans it out to a prepared statement
// per pooled connection instead of re-preparing selectTileSQL each time.
type Driver struct {
	id         string
	db         *sql.DB
	selectStmt *sql.Stmt
	meta       tiletype.Metadata
}

// Open opens the archive, sizes the pool to the host's CPU count
// (there is no override), and reads metadata.
func Open(c config.SourceConfig) (*Driver, error) {
	db, err := sql.Open("sqlite3", c.Path+"?mode=ro&_query_only=true")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "opening mbtiles archive", err)
	}
	poolSize := runtime.NumCPU()
	if poolSize < 1 {
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindFatal, "pinging mbtiles archive", err)
	}

	meta, err := readMetadata(db, c)
	if err != nil {
		db.Close()
		return nil, err
	}

	stmt, err := db.Prepare(selectTileSQL)
	if err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindFatal, "preparing mbtiles tile query", err)
	}

	return &Driver{id: c.ID, db: db, selectStmt: stmt, meta: meta}, nil
}

// readMetadata loads the metadata table's key/value rows into a
// tiletype.Metadata, at open.
func readMetadata(db *sql.DB, c config.SourceConfig) (tiletype.Metadata, error) {
	rows, err := db.Query(`SELECT name, value FROM metadata`)
	if err != nil {
		return tiletype.Metadata{}, apperr.Wrap(apperr.KindFatal, "reading mbtiles metadata table", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return tiletype.Metadata{}, apperr.Wrap(apperr.KindFatal, "scanning mbtiles metadata row", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return tiletype.Metadata{}, apperr.Wrap(apperr.KindFatal, "iterating mbtiles metadata rows", err)
	}

	m := tiletype.Metadata{
		ID:          c.ID,
		Name:        firstNonEmpty(c.Name, kv["name"]),
		Description: kv["description"],
		Attribution: firstNonEmpty(c.Attribution, kv["attribution"]),
		Format:      formatFromString(kv["format"]),
		MinZoom:     8,
		MaxZoom:     14,
	}
	if v, ok := kv["minzoom"]; ok {
		fmt.Sscanf(v, "%d", &m.MinZoom)
	}
	if v, ok := kv["maxzoom"]; ok {
		fmt.Sscanf(v, "%d", &m.MaxZoom)
	}
	if v, ok := kv["bounds"]; ok {
		var b tiletype.Bounds
		if n, _ := fmt.Sscanf(v, "%f,%f,%f,%f", &b[0], &b[1], &b[2], &b[3]); n == 4 && b.Valid() {
			m.Bounds = &b
		}
	}
	if v, ok := kv["center"]; ok {
		var ctr tiletype.Center
		if n, _ := fmt.Sscanf(v, "%f,%f,%f", &ctr[0], &ctr[1], &ctr[2]); n == 3 {
			m.Center = &ctr
		}
	}
	if v, ok := kv["json"]; ok && m.Format == tiletype.FormatPBF {
		var doc struct {
			VectorLayers json.RawMessage `json:"vector_layers"`
		}
		if json.Unmarshal([]byte(v), &doc) == nil && len(doc.VectorLayers) > 0 {
			m.VectorLayers = doc.VectorLayers
		}
	}
	return m, nil
}

func formatFromString(s string) tiletype.Format {
	f, ok := tiletype.ParseFormat(s)
	if !ok {
		return tiletype.FormatPBF
	}
	return f
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (d *Driver) Metadata() tiletype.Metadata { return d.meta }

func (d *Driver) ReadTileWithParams(ctx context.Context, coord tiletype.Coord, _ map[string]string) (*tiletype.Blob, error) {
	return d.ReadTile(ctx, coord)
}

// ReadTile converts the XYZ coordinate to MBTiles' TMS row before
// querying.
func (d *Driver) ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error) {
	if !coord.Valid() {
		return nil, apperr.New(apperr.KindUserInput, "tile coordinate out of range")
	}

	var data []byte
	tmsRow := coord.FlippedY()
	err := d.selectStmt.QueryRowContext(ctx, coord.Z, coord.X, tmsRow).Scan(&data)
	switch {
	case err == sql.ErrNoRows:
		return nil, apperr.New(apperr.KindNotFound, "tile not present in archive")
	case err != nil:
		return nil, apperr.Wrap(apperr.KindIO, "querying mbtiles tile", err)
	case len(data) == 0:
		// Structurally empty: a row exists but carries no payload.
		return nil, apperr.New(apperr.KindEmptyTile, "tile row has no payload")
	}

	encoding := tiletype.EncodingIdentity
	if isGzip(data) {
		encoding = tiletype.EncodingGzip
	}
	return &tiletype.Blob{
		Bytes:       data,
		ContentType: d.meta.Format.ContentType(),
		Encoding:    encoding,
	}, nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func (d *Driver) Close() error {
	d.selectStmt.Close()
	return d.db.Close()
}

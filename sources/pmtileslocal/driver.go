// Package pmtileslocal drives a PMTiles v3 archive on local disk.
// Header and root directory are cached at Open; reads are positional
// (io.ReaderAt), so multiple goroutines may call ReadTile concurrently
// without a hot-path lock.
package pmtileslocal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/protomaps/go-pmtiles/pmtiles"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/sources/internal/pmcascade"
	"github.com/mapcloud/tileserver/tiletype"
)

// Driver is a sources.Driver backed by a local PMTiles v3 file.
type Driver struct {
	id   string
	path string
	file *os.File

	header pmtiles.HeaderV3
	root   []pmtiles.EntryV3
	meta   tiletype.Metadata
}

// Open validates the archive and caches its header and root directory.
func Open(c config.SourceConfig) (*Driver, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "opening pmtiles archive", err)
	}

	headerBytes := make([]byte, pmtiles.HeaderV3LenBytes)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		f.Close()
		return nil, apperr.Wrap(apperr.KindFatal, "reading pmtiles header", err)
	}
	header := pmtiles.DeserializeHeader(headerBytes)

	rootRaw := make([]byte, header.RootLength)
	if _, err := f.ReadAt(rootRaw, int64(header.RootOffset)); err != nil {
		f.Close()
		return nil, apperr.Wrap(apperr.KindFatal, "reading pmtiles root directory", err)
	}
	rootDir, err := pmcascade.DecompressDir(header.InternalCompression, rootRaw)
	if err != nil {
		f.Close()
		return nil, apperr.Wrap(apperr.KindFatal, "decompressing pmtiles root directory", err)
	}
	entries := pmtiles.DeserializeEntries(bytes.NewReader(rootDir))

	d := &Driver{
		id:     c.ID,
		path:   c.Path,
		file:   f,
		header: header,
		root:   entries,
	}
	d.meta = metadataFromHeader(c, header)
	if info, err := f.Stat(); err == nil {
		slog.Info("opened pmtiles archive", "source", c.ID, "path", c.Path, "size", humanize.Bytes(uint64(info.Size())))
	}
	return d, nil
}

func metadataFromHeader(c config.SourceConfig, h pmtiles.HeaderV3) tiletype.Metadata {
	m := tiletype.Metadata{
		ID:          c.ID,
		Name:        c.Name,
		Attribution: c.Attribution,
		Format:      formatFromTileType(h.TileType),
		MinZoom:     h.MinZoom,
		MaxZoom:     h.MaxZoom,
	}
	b := tiletype.Bounds{
		float64(h.MinLonE7) / 1e7,
		float64(h.MinLatE7) / 1e7,
		float64(h.MaxLonE7) / 1e7,
		float64(h.MaxLatE7) / 1e7,
	}
	if b.Valid() {
		m.Bounds = &b
	}
	ctr := tiletype.Center{
		float64(h.CenterLonE7) / 1e7,
		float64(h.CenterLatE7) / 1e7,
		float64(h.CenterZoom),
	}
	m.Center = &ctr
	return m
}

func formatFromTileType(t pmtiles.TileType) tiletype.Format {
	switch t {
	case pmtiles.Mvt:
		return tiletype.FormatPBF
	case pmtiles.Png:
		return tiletype.FormatPNG
	case pmtiles.Jpeg:
		return tiletype.FormatJPG
	case pmtiles.Webp:
		return tiletype.FormatWebP
	default:
		return tiletype.FormatPBF
	}
}

func (d *Driver) Metadata() tiletype.Metadata { return d.meta }

func (d *Driver) ReadTileWithParams(ctx context.Context, coord tiletype.Coord, _ map[string]string) (*tiletype.Blob, error) {
	return d.ReadTile(ctx, coord)
}

// ReadTile traverses the directory cascade starting from the cached
// root, reading leaf directories on demand without re-reading the
// header.
func (d *Driver) ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error) {
	if !coord.Valid() {
		return nil, apperr.New(apperr.KindUserInput, "tile coordinate out of range")
	}
	tileID := pmtiles.ZxyToID(coord.Z, coord.X, coord.Y)

	entries := d.root
	for depth := 0; depth < pmcascade.MaxCascadeDepth; depth++ {
		entry, found := pmcascade.FindTile(entries, tileID)
		if !found {
			return nil, apperr.New(apperr.KindNotFound, "tile not present in archive")
		}
		if entry.RunLength > 0 {
			return d.readTileData(entry)
		}
		// RunLength == 0: entry points to a leaf directory, not a tile.
		leafRaw := make([]byte, entry.Length)
		if _, err := d.file.ReadAt(leafRaw, int64(d.header.LeafDirectoryOffset)+int64(entry.Offset)); err != nil {
			return nil, apperr.Wrap(apperr.KindIO, "reading pmtiles leaf directory", err)
		}
		leafDir, err := pmcascade.DecompressDir(d.header.InternalCompression, leafRaw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIO, "decompressing pmtiles leaf directory", err)
		}
		entries = pmtiles.DeserializeEntries(bytes.NewReader(leafDir))
	}
	return nil, apperr.New(apperr.KindFatal, "pmtiles directory cascade exceeded max depth")
}

func (d *Driver) readTileData(entry pmtiles.EntryV3) (*tiletype.Blob, error) {
	if entry.Length == 0 {
		return nil, apperr.New(apperr.KindEmptyTile, "tile has no payload")
	}
	buf := make([]byte, entry.Length)
	if _, err := d.file.ReadAt(buf, int64(d.header.TileDataOffset)+int64(entry.Offset)); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "reading pmtiles tile data", err)
	}
	encoding := tiletype.EncodingIdentity
	if d.header.TileCompression == pmtiles.Gzip {
		encoding = tiletype.EncodingGzip
	}
	return &tiletype.Blob{
		Bytes:       buf,
		ContentType: d.meta.Format.ContentType(),
		Encoding:    encoding,
	}, nil
}

func (d *Driver) Close() error {
	return d.file.Close()
}

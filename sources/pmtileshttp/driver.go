// Package pmtileshttp drives a remote PMTiles v3 archive over ranged
// HTTPS GETs. The header and root directory are fetched once and
// cached for the process lifetime; leaf directories are cached with a
// TTL via jellydator/ttlcache.
package pmtileshttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/protomaps/go-pmtiles/pmtiles"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/sources/internal/pmcascade"
	"github.com/mapcloud/tileserver/tiletype"
)

const (
	maxRetries       = 3
	leafDirCacheTTL  = 30 * time.Minute
	leafDirCacheSize = 256
)

// Driver is a sources.Driver backed by a PMTiles v3 archive served
// over HTTP(S) ranged GETs.
type Driver struct {
	id     string
	url    string
	client *http.Client

	header pmtiles.HeaderV3
	root   []pmtiles.EntryV3
	meta   tiletype.Metadata

	leafCache *ttlcache.Cache[uint64, []pmtiles.EntryV3]
}

// Open fetches and caches the header and root directory with two
// ranged GETs: the fixed-size header, then the root directory at the
// offset and length the header gives.
func Open(c config.SourceConfig) (*Driver, error) {
	d := &Driver{
		id:     c.ID,
		url:    c.URL,
		client: &http.Client{Timeout: 30 * time.Second},
		leafCache: ttlcache.New[uint64, []pmtiles.EntryV3](
			ttlcache.WithTTL[uint64, []pmtiles.EntryV3](leafDirCacheTTL),
			ttlcache.WithCapacity[uint64, []pmtiles.EntryV3](leafDirCacheSize),
		),
	}

	headerBytes, err := d.rangedGet(context.Background(), 0, pmtiles.HeaderV3LenBytes)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "fetching pmtiles header", err)
	}
	if len(headerBytes) < pmtiles.HeaderV3LenBytes {
		return nil, apperr.New(apperr.KindFatal, "pmtiles header short read")
	}
	header := pmtiles.DeserializeHeader(headerBytes)

	rootRaw, err := d.rangedGet(context.Background(), int64(header.RootOffset), int(header.RootLength))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "fetching pmtiles root directory", err)
	}
	rootDir, err := pmcascade.DecompressDir(header.InternalCompression, rootRaw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "decompressing pmtiles root directory", err)
	}

	d.header = header
	d.root = pmtiles.DeserializeEntries(bytes.NewReader(rootDir))
	d.meta = metadataFromHeader(c, header)
	go d.leafCache.Start()
	return d, nil
}

func (d *Driver) Metadata() tiletype.Metadata { return d.meta }

func (d *Driver) ReadTileWithParams(ctx context.Context, coord tiletype.Coord, _ map[string]string) (*tiletype.Blob, error) {
	return d.ReadTile(ctx, coord)
}

func (d *Driver) ReadTile(ctx context.Context, coord tiletype.Coord) (*tiletype.Blob, error) {
	if !coord.Valid() {
		return nil, apperr.New(apperr.KindUserInput, "tile coordinate out of range")
	}
	tileID := pmtiles.ZxyToID(coord.Z, coord.X, coord.Y)

	entries := d.root
	dirOffset := uint64(0) // offset of `entries` within its directory space; 0 = root
	for depth := 0; depth < pmcascade.MaxCascadeDepth; depth++ {
		entry, found := pmcascade.FindTile(entries, tileID)
		if !found {
			return nil, apperr.New(apperr.KindNotFound, "tile not present in archive")
		}
		if entry.RunLength > 0 {
			return d.readTileData(ctx, entry)
		}

		leafKey := dirOffset + entry.Offset
		if cached := d.leafCache.Get(leafKey); cached != nil {
			entries = cached.Value()
			dirOffset = leafKey
			continue
		}

		leafRaw, err := d.rangedGet(ctx, int64(d.header.LeafDirectoryOffset)+int64(entry.Offset), int(entry.Length))
		if err != nil {
			return nil, asUpstream(err)
		}
		leafDir, err := pmcascade.DecompressDir(d.header.InternalCompression, leafRaw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDecode, "decompressing pmtiles leaf directory", err)
		}
		entries = pmtiles.DeserializeEntries(bytes.NewReader(leafDir))
		d.leafCache.Set(leafKey, entries, ttlcache.DefaultTTL)
		dirOffset = leafKey
	}
	return nil, apperr.New(apperr.KindFatal, "pmtiles directory cascade exceeded max depth")
}

func (d *Driver) readTileData(ctx context.Context, entry pmtiles.EntryV3) (*tiletype.Blob, error) {
	if entry.Length == 0 {
		return nil, apperr.New(apperr.KindEmptyTile, "tile has no payload")
	}
	buf, err := d.rangedGet(ctx, int64(d.header.TileDataOffset)+int64(entry.Offset), int(entry.Length))
	if err != nil {
		return nil, asUpstream(err)
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
	d.leafCache.Stop()
	return nil
}

// notFoundHTTP marks a tile-range response that the caller should
// collapse to apperr.KindNotFound rather than retry.
type notFoundHTTP struct{}

func (notFoundHTTP) Error() string { return "pmtiles: range not found" }

// rangedGet issues a single-range GET with bounded retry on transient
// 5xx/timeout errors (≤3 attempts, jittered exponential backoff).
// 404 and 416 for a tile range both collapse to NotFound.
func (d *Driver) rangedGet(ctx context.Context, offset int64, length int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1))

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := readAndClose(resp)

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			return nil, notFoundHTTP{}
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
			if readErr != nil {
				lastErr = readErr
				continue
			}
			return body, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("pmtiles http %d: %s", resp.StatusCode, strconv.Itoa(resp.StatusCode))
			continue
		default:
			return nil, fmt.Errorf("pmtiles http unexpected status %d", resp.StatusCode)
		}
	}
	return nil, lastErr
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// asUpstream maps a rangedGet failure to the right apperr kind.
func asUpstream(err error) error {
	if _, ok := err.(notFoundHTTP); ok {
		return apperr.New(apperr.KindNotFound, "tile not present in archive")
	}
	return apperr.Wrap(apperr.KindUpstream, "pmtiles http range request failed", err)
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

// Package pmcascade holds the PMTiles v3 directory-cascade traversal
// shared by the local and HTTP PMTiles drivers: binary search over a
// directory's entries and decompression of a raw directory blob.
package pmcascade

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/protomaps/go-pmtiles/pmtiles"
)

// FindTile binary-searches entries for the run containing tileID. A
// run-length entry e matches any id in [e.TileID, e.TileID+e.RunLength).
// A RunLength==0 entry (a directory pointer) matches exactly e.TileID.
func FindTile(entries []pmtiles.EntryV3, tileID uint64) (pmtiles.EntryV3, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		e := entries[mid]
		switch {
		case tileID < e.TileID:
			hi = mid - 1
		case e.RunLength == 0 && tileID == e.TileID:
			return e, true
		case e.RunLength > 0 && tileID < e.TileID+uint64(e.RunLength):
			return e, true
		case tileID >= e.TileID+maxUint64(1, uint64(e.RunLength)):
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return pmtiles.EntryV3{}, false
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// DecompressDir decompresses a raw directory blob per the header's
// InternalCompression field.
func DecompressDir(c pmtiles.Compression, raw []byte) ([]byte, error) {
	switch c {
	case pmtiles.NoCompression, pmtiles.UnknownCompression:
		return raw, nil
	case pmtiles.Gzip:
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported directory compression %v", c)
	}
}

// MaxCascadeDepth bounds directory-cascade recursion; PMTiles archives
// in practice never nest more than two or three leaf directories deep.
const MaxCascadeDepth = 8

package pmcascade

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/protomaps/go-pmtiles/pmtiles"
)

func TestFindTileRunLengthEntry(t *testing.T) {
	entries := []pmtiles.EntryV3{
		{TileID: 0, RunLength: 5, Offset: 100, Length: 10},
		{TileID: 10, RunLength: 3, Offset: 200, Length: 10},
		{TileID: 20, RunLength: 1, Offset: 300, Length: 10},
	}
	e, ok := FindTile(entries, 11)
	if !ok || e.Offset != 200 {
		t.Fatalf("FindTile(11) = (%+v, %v), want the second entry", e, ok)
	}
	e, ok = FindTile(entries, 2)
	if !ok || e.Offset != 100 {
		t.Fatalf("FindTile(2) = (%+v, %v), want the first entry", e, ok)
	}
}

func TestFindTileDirectoryPointer(t *testing.T) {
	entries := []pmtiles.EntryV3{
		{TileID: 50, RunLength: 0, Offset: 400, Length: 10},
	}
	e, ok := FindTile(entries, 50)
	if !ok || e.Offset != 400 {
		t.Fatalf("FindTile(50) = (%+v, %v), want the pointer entry", e, ok)
	}
	if _, ok := FindTile(entries, 51); ok {
		t.Errorf("FindTile(51) should miss a RunLength==0 entry at a different id")
	}
}

func TestFindTileMiss(t *testing.T) {
	entries := []pmtiles.EntryV3{
		{TileID: 0, RunLength: 5, Offset: 100, Length: 10},
	}
	if _, ok := FindTile(entries, 100); ok {
		t.Errorf("expected a tile id far beyond the last run to miss")
	}
	if _, ok := FindTile(nil, 0); ok {
		t.Errorf("expected an empty entry list to miss")
	}
}

func TestDecompressDirNoCompression(t *testing.T) {
	raw := []byte("hello directory")
	out, err := DecompressDir(pmtiles.NoCompression, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("got %q, want %q", out, raw)
	}
}

func TestDecompressDirGzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte("compressed directory bytes")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	out, err := DecompressDir(pmtiles.Gzip, buf.Bytes())
	if err != nil {
		t.Fatalf("DecompressDir: %v", err)
	}
	if string(out) != "compressed directory bytes" {
		t.Errorf("got %q", out)
	}
}

func TestDecompressDirUnsupported(t *testing.T) {
	if _, err := DecompressDir(pmtiles.Compression(99), []byte("x")); err == nil {
		t.Errorf("expected an unsupported compression code to fail")
	}
}

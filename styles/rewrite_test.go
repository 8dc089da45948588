package styles

import "testing"

func TestRewritePassesThroughStyleWithoutSources(t *testing.T) {
	raw := []byte(`{"version":8,"layers":[]}`)
	out, err := Rewrite(raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("got %s, want an unmodified copy of the input", out)
	}
	// cloneBytes must return an independent slice, not an alias.
	out[0] = '!'
	if raw[0] == '!' {
		t.Errorf("Rewrite must not alias the input bytes")
	}
}

func TestRewritePassesThroughStyleWithNoDataSources(t *testing.T) {
	raw := []byte(`{"version":8,"sources":{"external":{"type":"raster","url":"https://example.com/tiles.json"}}}`)
	out, err := Rewrite(raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("got %s, want an unmodified copy since no source references this server's /data endpoint", out)
	}
}

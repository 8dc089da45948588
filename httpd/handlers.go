package httpd

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mapcloud/tileserver/apperr"
	"github.com/mapcloud/tileserver/raster"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/tilemeta"
	"github.com/mapcloud/tileserver/tiletype"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("ok"))
	}
}

func (s *Server) handleSourceList(w http.ResponseWriter, r *http.Request) {
	docs := tilemeta.BuildAggregate(s.src.List(), baseURL(r), s.cfg.PropagateQueryKey)
	writeJSON(w, r, "public, max-age=60", docs)
}

func (s *Server) handleTileJSON(w http.ResponseWriter, r *http.Request, req *Request) {
	meta, err := s.src.Metadata(req.SourceID)
	if err != nil {
		writeError(w, err)
		return
	}
	doc := tilemeta.Build(meta, baseURL(r), s.cfg.PropagateQueryKey)
	writeJSON(w, r, "public, max-age=60", doc)
}

// handleDataTile serves a driver-native tile from /data/{source}. Only
// PostGIS function sources honor query parameters; every other driver
// ignores them and ReadTileWithParams degrades to ReadTile for those,
// so we always pass the params through.
func (s *Server) handleDataTile(w http.ResponseWriter, r *http.Request, req *Request) {
	drv, err := s.src.Get(req.SourceID)
	if err != nil {
		writeError(w, err)
		return
	}

	var blob *tiletype.Blob
	if q := r.URL.Query(); len(q) > 0 {
		blob, err = drv.ReadTileWithParams(r.Context(), req.Coord, flattenQuery(q))
	} else {
		blob, err = drv.ReadTile(r.Context(), req.Coord)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeBlob(w, r, blob.ContentType, string(blob.Encoding), "public, max-age=86400, immutable", blob.Bytes)
}

// flattenQuery takes the first value of each query parameter, the
// shape sources.Driver.ReadTileWithParams expects.
func flattenQuery(q url.Values) map[string]string {
	params := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func (s *Server) handleStyleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, "public, max-age=60", s.sty.List())
}

func (s *Server) handleStyleDoc(w http.ResponseWriter, r *http.Request, req *Request) {
	raw, err := s.sty.GetClient(req.StyleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBlob(w, r, "application/json", "", "public, max-age=60", raw)
}

func (s *Server) handleRenderTile(w http.ResponseWriter, r *http.Request, req *Request) {
	if !s.sty.Has(req.StyleID) {
		writeError(w, apperr.New(apperr.KindNotFound, "unknown style"))
		return
	}
	job, err := raster.TileJob(raster.TileParams{
		StyleID: req.StyleID,
		Coord:   req.Coord,
		Scale:   req.Scale,
		Format:  req.Format,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.renderAndWrite(w, r, job)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request, req *Request) {
	if !s.sty.Has(req.StyleID) {
		writeError(w, apperr.New(apperr.KindNotFound, "unknown style"))
		return
	}
	spec := req.Static

	var job render.Job
	var err error
	switch spec.Kind {
	case StaticCenter:
		job, err = raster.StaticCenterJob(raster.StaticCenterParams{
			StyleID: req.StyleID,
			Lon:     spec.Lon, Lat: spec.Lat, Zoom: spec.Zoom,
			Bearing: spec.Bearing, Pitch: spec.Pitch,
			W: spec.W, H: spec.H, Scale: req.Scale, Format: req.Format,
		})
	case StaticBBox:
		job, err = raster.StaticBBoxJob(raster.StaticBBoxParams{
			StyleID: req.StyleID,
			West:    spec.West, South: spec.South, East: spec.East, North: spec.North,
			W: spec.W, H: spec.H, Scale: req.Scale, Format: req.Format,
		})
	case StaticAuto:
		overlays, oerr := raster.ParseOverlays(r.URL.Query())
		if oerr != nil {
			writeError(w, oerr)
			return
		}
		job, err = raster.StaticAutoJob(raster.StaticAutoParams{
			StyleID: req.StyleID,
			W:       spec.W, H: spec.H, Scale: req.Scale, Format: req.Format,
			Overlays: overlays,
		})
	default:
		err = apperr.New(apperr.KindUserInput, "unknown static-image shape")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.renderAndWrite(w, r, job)
}

func (s *Server) renderAndWrite(w http.ResponseWriter, r *http.Request, job render.Job) {
	result, err := s.pool.Render(r.Context(), job.Size.PixelRatio, job)
	if err != nil {
		writeError(w, err)
		return
	}
	body, contentType, err := raster.Encode(result, job.Format)
	if err != nil {
		writeError(w, err)
		return
	}
	cache := "public, max-age=3600"
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cache)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func (s *Server) handleWmts(w http.ResponseWriter, r *http.Request, req *Request) {
	if !s.sty.Has(req.StyleID) {
		writeError(w, apperr.New(apperr.KindNotFound, "unknown style"))
		return
	}
	xmlBytes, err := tilemeta.BuildCapabilities(tilemeta.StyleEntry{ID: req.StyleID}, baseURL(r), s.cfg.PropagateQueryKey)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindFatal, "assembling WMTS capabilities", err))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(xmlBytes)
	}
}

func (s *Server) handleFont(w http.ResponseWriter, r *http.Request, req *Request) {
	if s.cfg.Fonts == "" {
		writeError(w, apperr.New(apperr.KindNotFound, "no fonts directory configured"))
		return
	}
	path, err := safeJoin(s.cfg.Fonts, req.FontStack, req.FontRange+".pbf")
	if err != nil {
		writeError(w, apperr.New(apperr.KindUserInput, "invalid font path"))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, apperr.New(apperr.KindNotFound, "font range not found"))
		return
	}
	writeBlob(w, r, "application/x-protobuf", "", "public, max-age=86400, immutable", data)
}

func (s *Server) handleSprite(w http.ResponseWriter, r *http.Request, req *Request) {
	if s.cfg.Files == "" {
		writeError(w, apperr.New(apperr.KindNotFound, "no files directory configured"))
		return
	}
	name := req.SpriteName
	if req.SpriteX2 {
		name += "@2x"
	}
	path, err := safeJoin(s.cfg.Files, "sprites", name+"."+req.SpriteExt)
	if err != nil {
		writeError(w, apperr.New(apperr.KindUserInput, "invalid sprite path"))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, apperr.New(apperr.KindNotFound, "sprite not found"))
		return
	}
	contentType := "application/json"
	if req.SpriteExt == "png" {
		contentType = "image/png"
	}
	writeBlob(w, r, contentType, "", "public, max-age=86400", data)
}

// safeJoin joins relative parts onto root and rejects the result if
// it resolves outside root, the same path-traversal guard
// config.canonicalizeUnder applies at startup.
func safeJoin(root string, parts ...string) (string, error) {
	joined := filepath.Join(append([]string{root}, parts...)...)
	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindUserInput, "path escapes configured directory")
	}
	return joined, nil
}

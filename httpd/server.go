// Package httpd is the HTTP surface (C7): explicit route parsing
// (route.go), response assembly with cache-control contracts, and
// router/middleware wiring on a mux.Router + CustomLoggingHandler
// shape.
package httpd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/sources"
	"github.com/mapcloud/tileserver/styles"
)

// Server wires the source manager, style manager, and renderer pool
// behind the HTTP contracts. It holds no other state; everything it
// serves is owned by one of those three collaborators.
type Server struct {
	cfg  *config.Config
	src  *sources.Manager
	sty  *styles.Manager
	pool *render.Pool

	logger *slog.Logger
	srv    *http.Server
}

// New constructs a Server. pool may be nil only in tests that never
// exercise a rendering endpoint.
func New(cfg *config.Config, src *sources.Manager, sty *styles.Manager, pool *render.Pool) *Server {
	return &Server{
		cfg:    cfg,
		src:    src,
		sty:    sty,
		pool:   pool,
		logger: slog.With("d", "httpd"),
	}
}

// Router builds the mux.Router: one logging middleware, one
// CORS middleware compiled from config, and a single catch-all
// handler that defers to Parse for the actual URL grammar — mux here
// only carries the cross-cutting middleware, not the tile URL shapes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware(s.cfg.CORS()))
	router.PathPrefix("/").HandlerFunc(s.dispatch)
	return router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.srv = &http.Server{
		Addr:    s.cfg.Server.Addr(),
		Handler: s.Router(),
	}
	s.logger.Info("starting tile server", "addr", s.cfg.Server.Addr())
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server on a signal-triggered
// shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// dispatch is the one entrypoint every request passes through after
// the cross-cutting middleware: it enforces the GET/HEAD/OPTIONS
// method contract, parses the URL, and routes by Tag.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}

	req, err := Parse(r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.Tag {
	case TagHealth:
		s.handleHealth(w, r)
	case TagSourceList:
		s.handleSourceList(w, r)
	case TagTileJSON:
		s.handleTileJSON(w, r, req)
	case TagVectorTile, TagRasterTile:
		if req.StyleID != "" {
			s.handleRenderTile(w, r, req)
		} else {
			s.handleDataTile(w, r, req)
		}
	case TagStyleList:
		s.handleStyleList(w, r)
	case TagStyleDoc:
		s.handleStyleDoc(w, r, req)
	case TagStaticImage:
		s.handleStatic(w, r, req)
	case TagWmts:
		s.handleWmts(w, r, req)
	case TagFont:
		s.handleFont(w, r, req)
	case TagSprite:
		s.handleSprite(w, r, req)
	default:
		http.NotFound(w, r)
	}
}

// baseURL derives the scheme+host to stamp into absolute URLs,
// honoring a reverse proxy's X-Forwarded-Proto.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

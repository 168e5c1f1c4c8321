package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// shutdownTimeout bounds graceful HTTP shutdown at process exit.
const shutdownTimeout = 5 * time.Second

// Server serves a static output directory with live-reload support.
type Server struct {
	addr   string
	fsys   fs.FS
	hub    *Hub
	router *chi.Mux
	logger *slog.Logger
}

// New creates a server for the directory root listening on addr. The
// hub handles /livereload connections and may be shared with the
// dispatcher for broadcasting.
func New(root, addr string, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:   addr,
		fsys:   os.DirFS(root),
		hub:    hub,
		router: chi.NewRouter(),
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack. CORS is wide open:
// this server only ever hosts local development output.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))
}

// requestLogger logs each request at debug level. The console stays
// reserved for build status lines.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/livereload", s.hub.ServeHTTP)
	s.router.Get("/livereload.js", s.handleReloadScript)
	s.router.Get("/*", s.handleStatic)
	s.router.Head("/*", s.handleStatic)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. A listen failure (e.g. port in use) is returned
// immediately.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		errc <- httpServer.ListenAndServe()
	}()

	s.logger.Info("serving output directory", slog.String("addr", s.addr))

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if s.hub != nil {
			s.hub.Close()
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		return nil
	}
}

// handleReloadScript serves the embedded live-reload client.
func (s *Server) handleReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(livereloadJS)
}

// handleStatic serves files out of the output directory. HTML files are
// rewritten to carry the live-reload script; everything is served with
// no-store since the whole point is that the output keeps changing.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" || name == "." {
		name = "index.html"
	}

	info, err := fs.Stat(s.fsys, name)
	if err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
		info, err = fs.Stat(s.fsys, name)
	}

	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
		s.serveHTML(w, r, name)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.ServeFileFS(w, r, s.fsys, name)
}

// serveHTML reads an HTML file fully so the reload script can be
// injected before the response is written.
func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, name string) {
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}

		s.logger.Error("reading html file", slog.String("file", name), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if r.Method == http.MethodHead {
		return
	}

	_, _ = w.Write(injectReloadScript(data))
}

// Package server exposes the session registry over HTTP.
//
// Routes:
//
//	GET    /                  upload and query page
//	POST   /upload/           multipart "file" [+ "session_id"]
//	POST   /query/            {"question", "session_id", "k"}
//	GET    /sessions/         session list, newest first
//	DELETE /sessions/{id}
//	GET    /ws                websocket; one query per text frame
//
// Errors are JSON objects {"detail": "..."}.
package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haivivi/retrieva/go/pkg/answer"
	"github.com/haivivi/retrieva/go/pkg/ingest"
	"github.com/haivivi/retrieva/go/pkg/session"
)

//go:embed static/index.html
var indexHTML []byte

const defaultMaxUpload = 32 << 20

// Config configures a [Server].
type Config struct {
	// Registry is required.
	Registry *session.Registry

	// Generator answers queries. If nil, queries still return the retrieved
	// context and the answer explains that no provider is configured.
	Generator answer.Generator

	// K is the number of chunks retrieved per query when the request does
	// not set one. Default session.DefaultK.
	K int

	SplitOptions []ingest.SplitOption
	LoadOptions  []ingest.LoadOption

	// MaxUploadBytes caps upload request bodies. Default 32 MiB.
	MaxUploadBytes int64

	// TempDir holds uploads while they are extracted. Default os.TempDir().
	TempDir string

	Logger *slog.Logger
}

// Server is an http.Handler serving the routes listed in the package doc.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// New creates a server. It panics if cfg.Registry is nil.
func New(cfg Config) *Server {
	if cfg.Registry == nil {
		panic("server: Config.Registry is required")
	}
	if cfg.K <= 0 {
		cfg.K = session.DefaultK
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /upload/", s.handleUpload)
	s.mux.HandleFunc("POST /query/", s.handleQuery)
	s.mux.HandleFunc("GET /sessions/", s.handleListSessions)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("server: request", "method", r.Method, "path", r.URL.Path,
		"elapsed", time.Since(start))
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server: listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

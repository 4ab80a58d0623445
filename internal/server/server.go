// Package server wires the HTTP listener: static client at "/", the
// wsapi-owned /ws and /api/* endpoints, and graceful shutdown, grounded
// on the teacher's internal/server package.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ptyfan/ptyfan/internal/config"
	"github.com/ptyfan/ptyfan/web"
)

// Server wraps an *http.Server configured with the full route table.
type Server struct {
	httpServer *http.Server
}

// New builds the Server. apiHandler serves everything under /health,
// /api/, /ws, and /ws/{session_id}; every other path falls through to
// the embedded static client.
func New(cfg config.Config, apiHandler http.Handler) (*Server, error) {
	subFS, err := fs.Sub(web.Assets, "static")
	if err != nil {
		return nil, fmt.Errorf("server: sub filesystem: %w", err)
	}
	fileServer := http.FileServer(http.FS(subFS))

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIPath(r.URL.Path) {
			apiHandler.ServeHTTP(w, r)
			return
		}

		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if cleanPath == "" || cleanPath == "." || strings.HasPrefix(cleanPath, "session/") {
			cleanPath = "index.html"
		}

		if _, err := fs.Stat(subFS, cleanPath); err != nil {
			cleanPath = "index.html"
		}

		r2 := r.Clone(r.Context())
		u := *r.URL
		u.Path = "/" + cleanPath
		r2.URL = &u
		fileServer.ServeHTTP(w, r2)
	}))

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: mux,
		},
	}, nil
}

func isAPIPath(p string) bool {
	return strings.HasPrefix(p, "/api/") || p == "/health" || p == "/ws" || strings.HasPrefix(p, "/ws/")
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully with a bounded timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

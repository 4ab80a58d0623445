package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ptyfan/ptyfan/internal/config"
)

func TestServerServesStaticAndDelegatesAPI(t *testing.T) {
	apiCalled := false
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalled = true
		w.WriteHeader(http.StatusOK)
	})

	cfg := config.Defaults()
	cfg.Port = 0
	srv, err := New(cfg, api)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "ptyfan") {
		t.Errorf("expected static index content, got %q", body)
	}

	if _, err := http.Get(ts.URL + "/health"); err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if !apiCalled {
		t.Error("expected /health to be delegated to the API handler")
	}
}

func TestServerStartRespectsContextCancellation(t *testing.T) {
	cfg := config.Defaults()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv, err := New(cfg, api)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("expected graceful shutdown with nil error, got %v", err)
	}
}

package app

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mr-pickles/internal/config"
)

func newTestMCPServer() *mcp.Server {
	return mcp.NewServer(&mcp.Implementation{Name: "test", Version: "1.0"}, nil)
}

func TestNewSSEHandler_InvalidAuth(t *testing.T) {
	_, err := newSSEHandler(newTestMCPServer(), config.AuthSettings{Type: config.AuthTypeBasic}, slog.Default())
	if err == nil {
		t.Error("Expected error for invalid auth settings")
	}
}

func TestNewSSEHandler_Endpoints(t *testing.T) {
	auth := config.AuthSettings{Type: config.AuthTypeAPIKey, APIKeys: []string{"key1"}}
	handler, err := newSSEHandler(newTestMCPServer(), auth, slog.Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Expected 200 ok from /health without auth, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		t.Errorf("Unexpected Content-Type %q", rec.Header().Get("Content-Type"))
	}

	req = httptest.NewRequest("POST", "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for POST /health, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/sse", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for /sse without auth, got %d", rec.Code)
	}
}

func TestServeSSE_InvalidAuth(t *testing.T) {
	err := ServeSSE(context.Background(), newTestMCPServer(), &config.ServeSettings{
		Host: "127.0.0.1",
		Auth: config.AuthSettings{Type: config.AuthTypeBasic},
	})
	if err == nil {
		t.Error("Expected error for invalid auth settings")
	}
}

func TestServeSSE_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()

	err = ServeSSE(context.Background(), newTestMCPServer(), &config.ServeSettings{
		Host: "127.0.0.1",
		Port: l.Addr().(*net.TCPAddr).Port,
		Auth: config.AuthSettings{Type: config.AuthTypeNone},
	})
	if err == nil {
		t.Error("Expected error when the port is taken")
	}
}

func TestServeSSE_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeSSE(ctx, newTestMCPServer(), &config.ServeSettings{
			Host: "127.0.0.1",
			Port: 0,
			Auth: config.AuthSettings{Type: config.AuthTypeNone},
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("ServeSSE did not return after context was cancelled")
	}
}

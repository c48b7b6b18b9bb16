package gateway_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/registry"
	"github.com/shubham-shewale/market-pulse/pkg/symbols"
)

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func newHealthHub() (*hub.Hub, *registry.Registry) {
	reg := registry.New(symbols.NewResolver("NSE"), "NSE:NIFTY 50")
	return hub.NewHub(reg, nil, zap.NewNop()), reg
}

func TestHealthHandler_Body(t *testing.T) {
	h, reg := newHealthHub()

	rec := httptest.NewRecorder()
	gateway.HealthHandler(h, reg, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body struct {
		Status  string   `json:"status"`
		Symbols []string `json:"symbols"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || len(body.Symbols) != 1 {
		t.Errorf("unexpected health %+v", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestHealthHandler_LogsWriteFailure(t *testing.T) {
	h, reg := newHealthHub()
	core, logs := observer.New(zapcore.DebugLevel)

	w := &brokenWriter{header: make(http.Header)}
	gateway.HealthHandler(h, reg, zap.New(core)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.FilterMessage("Failed to write health response").All()
	if len(entries) != 1 {
		t.Fatalf("expected one debug entry for the failed write, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("expected debug level, got %s", entries[0].Level)
	}
}

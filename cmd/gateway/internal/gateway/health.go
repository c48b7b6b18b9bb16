package gateway

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/hub"
)

// ActiveSymbols is the part of the registry health reporting needs.
type ActiveSymbols interface {
	ActiveCanonicalSymbols() []string
}

type healthResponse struct {
	Status string `json:"status"`
	hub.Stats
	Symbols []string `json:"symbols"`
}

// HealthHandler reports connection, group and symbol counts as JSON.
func HealthHandler(h *hub.Hub, symbols ActiveSymbols, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(healthResponse{
			Status:  "ok",
			Stats:   h.Stats(),
			Symbols: symbols.ActiveCanonicalSymbols(),
		})
		if err != nil {
			logger.Debug("Failed to write health response", zap.Error(err))
		}
	}
}

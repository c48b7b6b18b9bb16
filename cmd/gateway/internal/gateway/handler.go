package gateway

import (
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/hub"
)

// Handler upgrades /ws requests from allowed origins into hub clients.
type Handler struct {
	hub        *hub.Hub
	limiter    *CommandLimiter
	logger     *zap.Logger
	origins    map[string]bool
	anyOrigin  bool
	sendBuffer int
}

func NewHandler(h *hub.Hub, limiter *CommandLimiter, logger *zap.Logger, allowedOrigins []string, sendBuffer int) *Handler {
	handler := &Handler{
		hub:        h,
		limiter:    limiter,
		logger:     logger,
		origins:    make(map[string]bool),
		sendBuffer: sendBuffer,
	}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			handler.anyOrigin = true
		}
		if o != "" {
			handler.origins[strings.ToLower(o)] = true
		}
	}
	return handler
}

// originAllowed accepts requests without an Origin header (non-browser
// clients) and those whose origin is listed.
func (h *Handler) originAllowed(origin string) bool {
	if origin == "" || h.anyOrigin {
		return true
	}
	return h.origins[strings.ToLower(strings.TrimRight(origin, "/"))]
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); !h.originAllowed(origin) {
		h.logger.Warn("Rejected origin", zap.String("origin", origin))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub, h.limiter, h.logger, h.sendBuffer)
	client.Start()
}

package handler

import (
	"context"
	"net/http"
	"time"

	"diary-sync-server/internal/domain"
	"diary-sync-server/pkg/logger"
	"diary-sync-server/pkg/response"

	"go.uber.org/zap"
)

const (
	serviceName    = "diary-sync-server"
	serviceVersion = "1.0.0"
	pingTimeout    = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store  Pinger
	driver string
	logger *zap.Logger
}

func NewHealthHandler(store Pinger, driver string, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		driver: driver,
		logger: logger.OrNop(log),
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	resp := domain.HealthResponse{
		Status:  "healthy",
		Service: serviceName,
		Store:   h.driver,
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", zap.String(logger.FieldDriver, h.driver), zap.Error(err))
		resp.Status = "degraded"
		response.ServiceUnavailable(w, resp)
		return
	}

	response.Success(w, resp)
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	response.Success(w, domain.RootResponse{
		Message: "Diary Sync Server API",
		Version: serviceVersion,
		Endpoints: map[string]string{
			"/api/diary":        "GET, POST (x-pass)",
			"/api/diary/stream": "GET (text/event-stream)",
			"/api/diary/ws":     "GET (websocket)",
			"/api/diary/today":  "GET",
			"/api/unlock":       "POST",
			"/api/session":      "GET (Bearer)",
			"/health":           "GET",
			"/metrics":          "GET",
		},
	})
}

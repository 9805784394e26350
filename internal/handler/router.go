package handler

import (
	"net/http"

	"diary-sync-server/internal/config"
	"diary-sync-server/internal/metrics"
	"diary-sync-server/internal/middleware"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Diary    *DiaryHandler
	Stream   *StreamHandler
	Unlock   *UnlockHandler
	Health   *HealthHandler
	Sessions middleware.SessionValidator
	Limiter  *middleware.Limiter
	Metrics  *metrics.Metrics
	CORS     config.CORSConfig
	Logger   *zap.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RecoveryMiddleware(d.Logger))
	r.Use(middleware.LoggerMiddleware(d.Logger))
	r.Use(middleware.CORSMiddleware(d.CORS))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/diary", d.Diary.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/diary/today", d.Diary.Today).Methods("GET", "OPTIONS")
	api.HandleFunc("/diary/stream", d.Stream.Events).Methods("GET")
	api.HandleFunc("/diary/ws", d.Stream.WebSocket).Methods("GET")

	limited := api.PathPrefix("").Subrouter()
	limited.Use(middleware.RateLimiter(d.Limiter))
	limited.HandleFunc("/diary", d.Diary.Write).Methods("POST", "OPTIONS")
	limited.HandleFunc("/unlock", d.Unlock.Unlock).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(d.Sessions))
	protected.HandleFunc("/session", d.Unlock.Session).Methods("GET", "OPTIONS")

	r.HandleFunc("/health", d.Health.Health).Methods("GET")
	r.HandleFunc("/", d.Health.Root).Methods("GET")

	return r
}

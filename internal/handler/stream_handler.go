package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"diary-sync-server/internal/stream"
	"diary-sync-server/pkg/logger"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	transportSSE = "sse"
	transportWS  = "ws"

	wsWriteWait = 10 * time.Second
)

type StreamTracker interface {
	StreamOpened(transport string)
	StreamClosed(transport string)
}

// StreamHandler serves the change-notification channel over SSE and, for
// clients that prefer it, over a websocket carrying the same events.
type StreamHandler struct {
	watcher  *stream.Watcher
	tracker  StreamTracker
	logger   *zap.Logger
	upgrader ws.Upgrader
}

func NewStreamHandler(watcher *stream.Watcher, tracker StreamTracker, log *zap.Logger) *StreamHandler {
	return &StreamHandler{
		watcher: watcher,
		tracker: tracker,
		logger:  logger.OrNop(log),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	log := h.connLogger(r, transportSSE)

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		log.Error("failed to open stream", zap.Error(err))
		return
	}

	h.serve(r.Context(), sink, transportSSE, log)
}

func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	log := h.connLogger(r, transportWS)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	c := stream.NewWSConn(conn, wsWriteWait)
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.ReadLoop(cancel, log)

	h.serve(ctx, c, transportWS, log)
}

func (h *StreamHandler) serve(ctx context.Context, sink stream.Sink, transport string, log *zap.Logger) {
	if h.tracker != nil {
		h.tracker.StreamOpened(transport)
		defer h.tracker.StreamClosed(transport)
	}

	start := time.Now()
	log.Info("stream opened", zap.Duration("interval", h.watcher.Interval()))

	err := h.watcher.Run(ctx, sink)

	age := zap.Duration("age", time.Since(start))
	switch {
	case err == nil:
		log.Info("stream closed", zap.String("reason", "client disconnected"), age)
	case errors.Is(err, stream.ErrVersionUnavailable):
		log.Error("stream transport error", zap.Error(err), age)
	default:
		log.Info("stream closed", zap.String("reason", "send failed"), zap.Error(err), age)
	}
}

func (h *StreamHandler) connLogger(r *http.Request, transport string) *zap.Logger {
	return h.logger.With(
		zap.String(logger.FieldConnID, uuid.New().String()),
		zap.String(logger.FieldTransport, transport),
		zap.String(logger.FieldRemote, r.RemoteAddr),
	)
}

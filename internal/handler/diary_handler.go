package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"diary-sync-server/internal/domain"
	"diary-sync-server/internal/metrics"
	"diary-sync-server/internal/service"
	"diary-sync-server/pkg/logger"
	"diary-sync-server/pkg/response"

	"go.uber.org/zap"
)

// PassHeader carries the diary write passphrase.
const PassHeader = "x-pass"

const maxWriteBodyBytes = 1 << 20

type WriteRecorder interface {
	RecordWrite(result string)
}

type DiaryHandler struct {
	diaryService *service.DiaryService
	recorder     WriteRecorder
	logger       *zap.Logger
}

func NewDiaryHandler(diaryService *service.DiaryService, recorder WriteRecorder, log *zap.Logger) *DiaryHandler {
	return &DiaryHandler{
		diaryService: diaryService,
		recorder:     recorder,
		logger:       logger.OrNop(log),
	}
}

func (h *DiaryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.diaryService.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list diary entries", zap.Error(err))
		response.InternalError(w, "failed to read diary")
		return
	}

	response.NoStore(w, entries)
}

// Write checks the passphrase before looking at the body, so an
// unauthenticated caller learns nothing about what a valid request is.
func (h *DiaryHandler) Write(w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get(PassHeader)
	if err := h.diaryService.Authorize(credential); err != nil {
		h.record(metrics.WriteUnauthorized)
		response.Unauthorized(w, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWriteBodyBytes)

	var req domain.WriteEntryRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.record(metrics.WriteBadRequest)
		response.BadRequest(w, "invalid request body")
		return
	}

	if _, err := h.diaryService.Write(r.Context(), credential, &req); err != nil {
		var verr *service.ValidationError
		switch {
		case errors.Is(err, service.ErrUnauthorized):
			h.record(metrics.WriteUnauthorized)
			response.Unauthorized(w, "unauthorized")
		case errors.As(err, &verr):
			h.record(metrics.WriteBadRequest)
			response.BadRequest(w, verr.Error())
		default:
			h.record(metrics.WriteError)
			h.logger.Error("failed to write diary entry", zap.Error(err))
			response.InternalError(w, "failed to save entry")
		}
		return
	}

	h.record(metrics.WriteOK)
	response.OK(w)
}

func (h *DiaryHandler) Today(w http.ResponseWriter, r *http.Request) {
	response.NoStore(w, h.diaryService.Today())
}

// decodeJSON reads exactly one JSON value from body. Anything after it,
// including a second value, is an error.
func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func (h *DiaryHandler) record(result string) {
	if h.recorder != nil {
		h.recorder.RecordWrite(result)
	}
}

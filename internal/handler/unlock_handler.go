package handler

import (
	"errors"
	"net/http"

	"diary-sync-server/internal/domain"
	"diary-sync-server/internal/middleware"
	"diary-sync-server/internal/service"
	"diary-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

const maxUnlockBodyBytes = 4 << 10

type UnlockHandler struct {
	unlockService *service.UnlockService
	validator     *validator.Validate
}

func NewUnlockHandler(unlockService *service.UnlockService) *UnlockHandler {
	return &UnlockHandler{
		unlockService: unlockService,
		validator:     validator.New(),
	}
}

func (h *UnlockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUnlockBodyBytes)

	var req domain.UnlockRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "pass is required")
		return
	}

	resp, err := h.unlockService.Unlock(req.Pass)
	if err != nil {
		if errors.Is(err, service.ErrUnlockDisabled) {
			response.Unauthorized(w, "unlock is disabled")
			return
		}
		response.Unauthorized(w, "wrong passphrase")
		return
	}

	response.NoStore(w, resp)
}

// Session reports the session admitted by the auth middleware.
func (h *UnlockHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r)
	if session == nil {
		response.Unauthorized(w, "no session")
		return
	}

	response.NoStore(w, session)
}

package domain

type UnlockRequest struct {
	Pass string `json:"pass" validate:"required"`
}

type UnlockResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type SessionResponse struct {
	OK        bool  `json:"ok"`
	ExpiresAt int64 `json:"expires_at"`
}

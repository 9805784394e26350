package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"diary-sync-server/internal/config"
	"diary-sync-server/internal/domain"
	"diary-sync-server/pkg/hash"
	"diary-sync-server/pkg/jwt"
	"diary-sync-server/pkg/logger"

	"go.uber.org/zap"
)

const sessionSubject = "recipient"

// UnlockService trades the UI unlock passphrase for a session token. It has
// no say over diary writes, which only honour the write passphrase.
type UnlockService struct {
	unlockPass string
	secret     string
	expiration time.Duration
	logger     *zap.Logger
}

func NewUnlockService(cfg config.SessionConfig, log *zap.Logger) (*UnlockService, error) {
	log = logger.OrNop(log)

	secret := cfg.Secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	if cfg.UnlockPass == "" {
		log.Warn("UNLOCK_PASS not set; unlock is disabled")
	}

	return &UnlockService{
		unlockPass: cfg.UnlockPass,
		secret:     secret,
		expiration: cfg.Expiration,
		logger:     log,
	}, nil
}

func (s *UnlockService) Secret() string {
	return s.secret
}

func (s *UnlockService) Unlock(pass string) (*domain.UnlockResponse, error) {
	if s.unlockPass == "" {
		return nil, ErrUnlockDisabled
	}

	if !hash.Verify(s.unlockPass, pass) {
		return nil, ErrUnauthorized
	}

	token, err := jwt.GenerateToken(sessionSubject, s.expiration, s.secret)
	if err != nil {
		return nil, err
	}

	return &domain.UnlockResponse{
		OK:        true,
		Token:     token,
		ExpiresAt: time.Now().Add(s.expiration).UnixMilli(),
	}, nil
}

func (s *UnlockService) Session(token string) (*domain.SessionResponse, error) {
	claims, err := jwt.ValidateToken(token, s.secret)
	if err != nil || claims.Subject != sessionSubject {
		return nil, ErrUnauthorized
	}

	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UnixMilli()
	}

	return &domain.SessionResponse{
		OK:        true,
		ExpiresAt: expiresAt,
	}, nil
}

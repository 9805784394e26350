package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"diary-sync-server/internal/config"
	"diary-sync-server/internal/domain"
	"diary-sync-server/internal/repository"
	"diary-sync-server/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"
)

type DiaryService struct {
	entries   repository.EntryRepository
	versions  repository.VersionRepository
	writePass string
	start     time.Time
	loc       *time.Location
	validate  *validator.Validate
	now       func() time.Time
	logger    *zap.Logger
}

func NewDiaryService(
	entries repository.EntryRepository,
	versions repository.VersionRepository,
	cfg config.DiaryConfig,
	log *zap.Logger,
) *DiaryService {
	validate := validator.New()
	validate.RegisterValidation("notblank", validators.NotBlank)

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &DiaryService{
		entries:   entries,
		versions:  versions,
		writePass: cfg.WritePass,
		start:     cfg.StartDate,
		loc:       loc,
		validate:  validate,
		now:       time.Now,
		logger:    logger.OrNop(log),
	}
}

// WithClock replaces the time source used for entry timestamps and the day index.
func (s *DiaryService) WithClock(now func() time.Time) *DiaryService {
	s.now = now
	return s
}

func (s *DiaryService) Authorize(credential string) error {
	if !Authorize(s.writePass, credential) {
		return ErrUnauthorized
	}
	return nil
}

// List returns every entry, most recent day first.
func (s *DiaryService) List(ctx context.Context) ([]*domain.DiaryEntry, error) {
	entries, err := s.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*domain.DiaryEntry{}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Day > entries[j].Day
	})

	return entries, nil
}

// Write checks the credential, validates the request, replaces the entry for
// req.Day and bumps the version counter. The entry is written before the
// counter, so a failed increment leaves a saved entry that clients have not
// been told about yet; it never reports a save that did not happen.
func (s *DiaryService) Write(ctx context.Context, credential string, req *domain.WriteEntryRequest) (*domain.DiaryEntry, error) {
	if err := s.Authorize(credential); err != nil {
		return nil, err
	}

	if req == nil {
		return nil, &ValidationError{Reason: "missing body"}
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &ValidationError{Reason: fmt.Sprintf("%s failed on %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag())}
		}
		return nil, &ValidationError{Reason: err.Error()}
	}

	entry := &domain.DiaryEntry{
		Day:       *req.Day,
		Text:      strings.TrimSpace(req.Text),
		Timestamp: s.now().UnixMilli(),
	}

	if err := s.entries.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	v, err := s.versions.Increment(ctx)
	if err != nil {
		s.logger.Error("diary entry saved but version increment failed",
			zap.Int64(logger.FieldDay, entry.Day),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("diary entry saved",
		zap.Int64(logger.FieldDay, entry.Day),
		zap.Int64(logger.FieldVersion, v))

	return entry, nil
}

// Version reads the change counter. It satisfies stream.VersionSource.
func (s *DiaryService) Version(ctx context.Context) (int64, error) {
	return s.versions.Get(ctx)
}

// Today returns the day index of the current moment, counted in whole days
// from the configured start date.
func (s *DiaryService) Today() *domain.TodayResponse {
	now := s.now().In(s.loc)
	days := int64(math.Floor(now.Sub(s.start).Hours() / 24))

	return &domain.TodayResponse{
		Day:   days,
		Start: s.start.In(s.loc).Format("2006-01-02"),
		Now:   now.UnixMilli(),
	}
}

package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/repository"
	"github.com/and161185/sociallink/internal/validate"
)

// exploreLimit caps the explore listing.
const exploreLimit = 50

// ProfileService defines profile reads and edits.
type ProfileService interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Explore lists other profiles whose username contains query.
	Explore(ctx context.Context, self uuid.UUID, query string) ([]model.ProfileSummary, error)
	Update(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error)
	// ChangeAvatar uploads a new avatar and returns its URL.
	ChangeAvatar(ctx context.Context, id uuid.UUID, contentType string, body io.Reader) (string, error)
}

// SummaryInvalidator drops cached profile summaries.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// AvatarUploader stores avatar images.
type AvatarUploader interface {
	Upload(ctx context.Context, userID uuid.UUID, contentType string, body io.Reader) (string, error)
}

type ProfileServiceImpl struct {
	profiles repository.ProfileRepository
	cache    SummaryInvalidator
	avatars  AvatarUploader
	log      *zap.Logger
}

// NewProfileService constructs ProfileService. avatars may be nil when no bucket is configured.
func NewProfileService(profiles repository.ProfileRepository, cache SummaryInvalidator, avatars AvatarUploader, log *zap.Logger) *ProfileServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileServiceImpl{profiles: profiles, cache: cache, avatars: avatars, log: log}
}

func (s *ProfileServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return s.profiles.Get(ctx, id)
}

func (s *ProfileServiceImpl) Explore(ctx context.Context, self uuid.UUID, query string) ([]model.ProfileSummary, error) {
	return s.profiles.ListOthers(ctx, self, query, exploreLimit)
}

// Update validates and applies the edit, then drops the cached summary.
func (s *ProfileServiceImpl) Update(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error) {
	if upd == (model.ProfileUpdate{}) {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrValidation)
	}
	if err := validate.Struct(upd); err != nil {
		return nil, err
	}
	p, err := s.profiles.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

// ChangeAvatar uploads the image, stores its URL and drops the cached summary.
func (s *ProfileServiceImpl) ChangeAvatar(ctx context.Context, id uuid.UUID, contentType string, body io.Reader) (string, error) {
	if s.avatars == nil {
		return "", fmt.Errorf("avatar storage is not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: avatar must be an image, got %q", errs.ErrValidation, contentType)
	}
	url, err := s.avatars.Upload(ctx, id, contentType, body)
	if err != nil {
		return "", err
	}
	if err := s.profiles.SetAvatar(ctx, id, url); err != nil {
		return "", err
	}
	s.invalidate(ctx, id)
	return url, nil
}

func (s *ProfileServiceImpl) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("profile cache invalidate failed", zap.String("profile_id", id.String()), zap.Error(err))
	}
}

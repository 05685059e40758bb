package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/objectstore"
)

// AvatarPresigner issues upload URLs for avatar images.
type AvatarPresigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (*objectstore.Upload, error)
}

// ProfileService serves the user.* procedures.
type ProfileService struct {
	profiles  store.ProfileRepository
	plans     store.PlanRepository
	presigner AvatarPresigner
	logger    *zap.Logger
	now       func() time.Time
}

// NewProfileService builds the service. presigner may be nil when no bucket
// is configured.
func NewProfileService(st store.Store, presigner AvatarPresigner, logger *zap.Logger) *ProfileService {
	return &ProfileService{profiles: st, plans: st, presigner: presigner, logger: logger, now: time.Now}
}

// ensureProfile loads the caller's profile, creating it on first use.
func ensureProfile(ctx context.Context, profiles store.ProfileRepository, identity *domain.Identity, now time.Time) (*domain.UserProfile, error) {
	profile, err := profiles.GetProfile(ctx, identity.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	username := identity.Username
	if username == "" {
		username = strings.SplitN(identity.Email, "@", 2)[0]
	}
	profile = &domain.UserProfile{
		ID:          identity.UserID,
		Email:       identity.Email,
		Username:    username,
		Preferences: domain.DefaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := profiles.CreateProfileIfAbsent(ctx, profile); err != nil {
		return nil, err
	}
	// A concurrent first request may have won the race; read back the winner.
	return profiles.GetProfile(ctx, identity.UserID)
}

func (s *ProfileService) GetProfile(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (*domain.UserProfile, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	profile, err := ensureProfile(ctx, s.profiles, user, s.now())
	if err != nil {
		return nil, storeError(err, "Profile not found")
	}
	plans, err := s.plans.ListPlans(ctx, user.UserID)
	if err != nil {
		return nil, storeError(err, "Profile not found")
	}
	profile.Stats = domain.ComputeStats(plans)
	return profile, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, rc *rpc.Context, in domain.UpdateProfileInput) (*domain.UserProfile, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	if in.AvatarKey != nil && *in.AvatarKey != "" && !strings.HasPrefix(*in.AvatarKey, avatarPrefix(user.UserID)) {
		return nil, apperr.BadRequest("avatarKey does not belong to this user")
	}

	profile, err := ensureProfile(ctx, s.profiles, user, s.now())
	if err != nil {
		return nil, storeError(err, "Profile not found")
	}
	if in.FirstName != nil {
		profile.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		profile.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		profile.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Username != nil {
		profile.Username = strings.TrimSpace(*in.Username)
	}
	if in.AvatarKey != nil {
		profile.AvatarKey = *in.AvatarKey
	}
	profile.UpdatedAt = s.now()

	if err := s.profiles.PutProfile(ctx, profile); err != nil {
		return nil, storeError(err, "Profile not found")
	}
	return profile, nil
}

func (s *ProfileService) UpdatePreferences(ctx context.Context, rc *rpc.Context, in domain.UpdatePreferencesInput) (*domain.Preferences, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	profile, err := ensureProfile(ctx, s.profiles, user, s.now())
	if err != nil {
		return nil, storeError(err, "Profile not found")
	}
	in.Apply(&profile.Preferences)
	profile.UpdatedAt = s.now()
	if err := s.profiles.PutProfile(ctx, profile); err != nil {
		return nil, storeError(err, "Profile not found")
	}
	return &profile.Preferences, nil
}

func avatarPrefix(userID string) string {
	return "avatars/" + userID + "/"
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

func (s *ProfileService) GetAvatarUploadURL(ctx context.Context, rc *rpc.Context, in domain.AvatarUploadInput) (*objectstore.Upload, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	if s.presigner == nil {
		return nil, apperr.BadRequest("Avatar uploads are not configured")
	}
	key := avatarPrefix(user.UserID) + uuid.NewString() + avatarExtensions[in.ContentType]
	upload, err := s.presigner.PresignUpload(ctx, key, in.ContentType)
	if err != nil {
		return nil, apperr.Internal("Could not create upload URL", err)
	}
	return upload, nil
}

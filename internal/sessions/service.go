package sessions

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Update describes a partial session write. Nil fields leave the stored value
// untouched; the Clear* flags null the column out.
type Update struct {
	Cookies           map[string]string
	Headers           map[string]string
	AuthToken         *string
	ClearAuthToken    bool
	RefreshToken      *string
	ClearRefreshToken bool
	ExpiresAt         *time.Time
	ClearExpiresAt    bool
	LastUsedAt        *time.Time
}

func (u Update) columns() map[string]any {
	columns := map[string]any{}
	if u.Cookies != nil {
		columns["cookies"] = u.Cookies
	}
	if u.Headers != nil {
		columns["headers"] = u.Headers
	}
	if u.ClearAuthToken {
		columns["auth_token"] = nil
	} else if u.AuthToken != nil {
		columns["auth_token"] = *u.AuthToken
	}
	if u.ClearRefreshToken {
		columns["refresh_token"] = nil
	} else if u.RefreshToken != nil {
		columns["refresh_token"] = *u.RefreshToken
	}
	if u.ClearExpiresAt {
		columns["expires_at"] = nil
	} else if u.ExpiresAt != nil {
		columns["expires_at"] = u.ExpiresAt.UTC()
	}
	if u.LastUsedAt != nil {
		columns["last_used_at"] = u.LastUsedAt.UTC()
	}
	return columns
}

// ServiceParams groups dependencies for the session service.
type ServiceParams struct {
	Repo Repository
}

// Service persists reusable authentication state per distributor.
type Service struct {
	repo Repository
}

// NewService builds a session service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stdErrors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// Get returns the stored session, or nil when none exists.
func (s *Service) Get(ctx context.Context, distributorID uuid.UUID) (*models.DistributorSession, error) {
	return s.repo.FindByDistributor(ctx, distributorID)
}

// Apply writes a partial update in a single UPDATE, creating the session row
// first when none exists yet.
func (s *Service) Apply(ctx context.Context, distributorID uuid.UUID, update Update) error {
	existing, err := s.repo.FindByDistributor(ctx, distributorID)
	if err != nil {
		return err
	}
	if existing == nil {
		session := &models.DistributorSession{
			ID:            uuid.New(),
			DistributorID: distributorID,
		}
		if err := s.repo.Create(ctx, session); err != nil {
			return err
		}
	}
	return s.repo.UpdateColumns(ctx, distributorID, update.columns())
}

// Touch records that the session was just used.
func (s *Service) Touch(ctx context.Context, distributorID uuid.UUID, now time.Time) error {
	return s.repo.UpdateColumns(ctx, distributorID, map[string]any{
		"last_used_at": now.UTC(),
	})
}

// Clear drops the stored session entirely.
func (s *Service) Clear(ctx context.Context, distributorID uuid.UUID) error {
	return s.repo.DeleteByDistributor(ctx, distributorID)
}

// IsExpired reports whether a stored session has passed its expiry. A session
// without an expiry is treated as live until the portal says otherwise.
func IsExpired(session *models.DistributorSession, now time.Time) bool {
	if session == nil {
		return true
	}
	if session.ExpiresAt == nil {
		return false
	}
	return !session.ExpiresAt.After(now.UTC())
}

package distributors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strconv"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/secrets"
	"github.com/google/uuid"
)

// Setting keys shared across platform adapters. Platform-specific keys live
// with their adapter.
const (
	SettingBaseURL           = "base_url"
	SettingCredentialsSecret = "credentials_secret"
	SettingUsername          = "username"
	SettingPassword          = "password"
)

// CredentialResolver resolves portal credentials by secret name.
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, name string) (secrets.Credentials, error)
}

// ServiceParams groups dependencies for the distributor service.
type ServiceParams struct {
	Repo     Repository
	Resolver CredentialResolver
}

// Service exposes the distributor registry and credential resolution.
type Service struct {
	repo     Repository
	resolver CredentialResolver
}

// NewService builds a distributor service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stdErrors.New("repo is required")
	}
	return &Service{repo: params.Repo, resolver: params.Resolver}, nil
}

// Get returns the distributor or a not-found error.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Distributor, error) {
	dist, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dist == nil {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("distributor %s not found", id))
	}
	return dist, nil
}

// ListActive returns all active distributors.
func (s *Service) ListActive(ctx context.Context) ([]models.Distributor, error) {
	return s.repo.ListActive(ctx)
}

// ListOrderingEnabled returns active distributors with live ordering turned on.
func (s *Service) ListOrderingEnabled(ctx context.Context) ([]models.Distributor, error) {
	return s.repo.ListOrderingEnabled(ctx)
}

// Credentials resolves portal credentials for a distributor. A secret
// reference in settings wins; inline username/password settings are the
// fallback for distributors not yet migrated to the secret store.
func (s *Service) Credentials(ctx context.Context, dist *models.Distributor) (secrets.Credentials, error) {
	if dist == nil {
		return secrets.Credentials{}, errors.New(errors.CodeConfiguration, "distributor is required")
	}

	if secretName, err := SettingString(dist, SettingCredentialsSecret); err == nil {
		if s.resolver == nil {
			return secrets.Credentials{}, errors.New(errors.CodeConfiguration,
				fmt.Sprintf("distributor %s references secret %q but no secret source is configured", dist.ID, secretName))
		}
		creds, err := s.resolver.ResolveCredentials(ctx, secretName)
		if err != nil {
			return secrets.Credentials{}, errors.Wrap(errors.CodeConfiguration, err,
				fmt.Sprintf("resolving credentials for distributor %s", dist.ID))
		}
		return creds, nil
	}

	username, userErr := SettingString(dist, SettingUsername)
	password, passErr := SettingString(dist, SettingPassword)
	if userErr != nil || passErr != nil {
		return secrets.Credentials{}, errors.New(errors.CodeConfiguration,
			fmt.Sprintf("distributor %s has no credentials configured", dist.ID))
	}
	return secrets.Credentials{Username: username, Password: password}, nil
}

// SettingString reads a required string setting, returning a configuration
// error when missing or empty.
func SettingString(dist *models.Distributor, key string) (string, error) {
	raw, ok := dist.Settings[key]
	if !ok {
		return "", missingSetting(dist, key)
	}
	val, ok := raw.(string)
	if !ok || val == "" {
		return "", missingSetting(dist, key)
	}
	return val, nil
}

// SettingInt reads a required integer setting. JSON round-trips numbers as
// float64 so both numeric and string forms are accepted.
func SettingInt(dist *models.Distributor, key string) (int, error) {
	raw, ok := dist.Settings[key]
	if !ok {
		return 0, missingSetting(dist, key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, missingSetting(dist, key)
		}
		return parsed, nil
	}
	return 0, missingSetting(dist, key)
}

func missingSetting(dist *models.Distributor, key string) error {
	return errors.New(errors.CodeConfiguration,
		fmt.Sprintf("distributor %s is missing setting %q", dist.ID, key))
}

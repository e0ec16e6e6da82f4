package distributors

import (
	"context"
	"testing"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/secrets"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stubRepo struct {
	byID map[uuid.UUID]*models.Distributor
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Distributor, error) {
	return s.byID[id], nil
}

func (s *stubRepo) ListActive(context.Context) ([]models.Distributor, error) {
	return nil, nil
}

func (s *stubRepo) ListOrderingEnabled(context.Context) ([]models.Distributor, error) {
	return nil, nil
}

func (s *stubRepo) Update(context.Context, *models.Distributor) error { return nil }

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	svc, err := NewService(ServiceParams{Repo: &stubRepo{byID: map[uuid.UUID]*models.Distributor{}}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Get(context.Background(), uuid.New())
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCredentialsFromSecretStore(t *testing.T) {
	t.Parallel()

	resolver, _ := secrets.NewResolver(secrets.StaticSource{
		"dist-valley": []byte(`{"username":"buyer","password":"pw"}`),
	})
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}, Resolver: resolver})

	dist := &models.Distributor{
		ID:       uuid.New(),
		Settings: models.Settings{SettingCredentialsSecret: "dist-valley"},
	}
	creds, err := svc.Credentials(context.Background(), dist)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.Username != "buyer" || creds.Password != "pw" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestCredentialsInlineFallback(t *testing.T) {
	t.Parallel()

	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})
	dist := &models.Distributor{
		ID: uuid.New(),
		Settings: models.Settings{
			SettingUsername: "inline-user",
			SettingPassword: "inline-pass",
		},
	}
	creds, err := svc.Credentials(context.Background(), dist)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.Username != "inline-user" || creds.Password != "inline-pass" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestCredentialsMissingConfiguration(t *testing.T) {
	t.Parallel()

	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})
	dist := &models.Distributor{ID: uuid.New(), Settings: models.Settings{}}

	_, err := svc.Credentials(context.Background(), dist)
	if !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCredentialsSecretResolutionFailure(t *testing.T) {
	t.Parallel()

	resolver, _ := secrets.NewResolver(secrets.StaticSource{})
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}, Resolver: resolver})
	dist := &models.Distributor{
		ID:       uuid.New(),
		Settings: models.Settings{SettingCredentialsSecret: "missing"},
	}

	_, err := svc.Credentials(context.Background(), dist)
	if !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSettingString(t *testing.T) {
	t.Parallel()

	dist := &models.Distributor{
		ID: uuid.New(),
		Settings: models.Settings{
			SettingBaseURL: "https://portal.example.com",
			"empty":        "",
			"number":       42,
		},
	}

	if got, err := SettingString(dist, SettingBaseURL); err != nil || got != "https://portal.example.com" {
		t.Fatalf("SettingString(base_url) = %q, %v", got, err)
	}
	if _, err := SettingString(dist, "empty"); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error for empty value, got %v", err)
	}
	if _, err := SettingString(dist, "absent"); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error for absent key, got %v", err)
	}
	if _, err := SettingString(dist, "number"); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error for non-string value, got %v", err)
	}
}

func TestSettingInt(t *testing.T) {
	t.Parallel()

	dist := &models.Distributor{
		ID: uuid.New(),
		Settings: models.Settings{
			"int":     7,
			"float":   float64(12),
			"string":  "99",
			"garbage": "not-a-number",
		},
	}

	for key, want := range map[string]int{"int": 7, "float": 12, "string": 99} {
		got, err := SettingInt(dist, key)
		if err != nil || got != want {
			t.Fatalf("SettingInt(%q) = %d, %v want %d", key, got, err, want)
		}
	}
	if _, err := SettingInt(dist, "garbage"); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

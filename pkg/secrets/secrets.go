package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Source fetches raw secret payloads by name.
type Source interface {
	AccessSecret(ctx context.Context, name string) ([]byte, error)
}

// Credentials is the payload shape stored for distributor portal logins.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Extra carries platform-specific values such as API keys or account
	// numbers that some portals require alongside the login pair.
	Extra map[string]string `json:"extra,omitempty"`
}

var errSecretNameRequired = errors.New("secret name is required")

// ManagerSource reads secrets from Google Secret Manager.
type ManagerSource struct {
	client    *secretmanager.Client
	projectID string
}

// NewManagerSource builds a Secret Manager backed source.
func NewManagerSource(ctx context.Context, projectID string) (*ManagerSource, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("gcp project id is required")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	return &ManagerSource{client: client, projectID: projectID}, nil
}

// AccessSecret fetches the latest version of the named secret.
func (s *ManagerSource) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	resource, err := s.versionResourceName(name)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %q: %w", name, err)
	}
	return resp.GetPayload().GetData(), nil
}

// Close releases the underlying client.
func (s *ManagerSource) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *ManagerSource) versionResourceName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", errSecretNameRequired
	}
	if strings.HasPrefix(n, "projects/") {
		if strings.Contains(n, "/versions/") {
			return n, nil
		}
		return n + "/versions/latest", nil
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, n), nil
}

// StaticSource serves secrets from an in-memory map. Used when Secret Manager
// is disabled and in tests.
type StaticSource map[string][]byte

func (s StaticSource) AccessSecret(_ context.Context, name string) ([]byte, error) {
	payload, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("secret %q not found", name)
	}
	return payload, nil
}

// Resolver caches resolved credentials for the lifetime of the process.
// Portal credentials rotate out of band and a restart picks them up; the
// cache avoids a Secret Manager round trip on every authentication.
type Resolver struct {
	source Source

	mu    sync.RWMutex
	cache map[string]Credentials
}

// NewResolver wires a resolver over the given source.
func NewResolver(source Source) (*Resolver, error) {
	if source == nil {
		return nil, errors.New("secret source is required")
	}
	return &Resolver{
		source: source,
		cache:  map[string]Credentials{},
	}, nil
}

// ResolveCredentials fetches and decodes the named credentials payload,
// serving repeated lookups from the in-process cache.
func (r *Resolver) ResolveCredentials(ctx context.Context, name string) (Credentials, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return Credentials{}, errSecretNameRequired
	}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	payload, err := r.source.AccessSecret(ctx, key)
	if err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decoding secret %q: %w", key, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("secret %q is missing username or password", key)
	}

	r.mu.Lock()
	r.cache[key] = creds
	r.mu.Unlock()

	return creds, nil
}

// Invalidate drops a cached entry so the next resolve refetches it.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, strings.TrimSpace(name))
	r.mu.Unlock()
}

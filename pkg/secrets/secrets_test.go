package secrets

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type countingSource struct {
	inner StaticSource
	calls atomic.Int64
}

func (c *countingSource) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	c.calls.Add(1)
	return c.inner.AccessSecret(ctx, name)
}

func TestResolveCredentials(t *testing.T) {
	t.Parallel()

	src := &countingSource{inner: StaticSource{
		"dist-valley": []byte(`{"username":"buyer@example.com","password":"hunter2"}`),
	}}
	resolver, err := NewResolver(src)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	creds, err := resolver.ResolveCredentials(context.Background(), "dist-valley")
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds.Username != "buyer@example.com" || creds.Password != "hunter2" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestResolveCredentialsCachesByName(t *testing.T) {
	t.Parallel()

	src := &countingSource{inner: StaticSource{
		"dist-metro": []byte(`{"username":"u","password":"p"}`),
	}}
	resolver, _ := NewResolver(src)

	for i := 0; i < 3; i++ {
		if _, err := resolver.ResolveCredentials(context.Background(), "dist-metro"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected one source access, got %d", got)
	}

	resolver.Invalidate("dist-metro")
	if _, err := resolver.ResolveCredentials(context.Background(), "dist-metro"); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", got)
	}
}

func TestResolveCredentialsRejectsIncompletePayload(t *testing.T) {
	t.Parallel()

	resolver, _ := NewResolver(StaticSource{
		"broken": []byte(`{"username":"only-user"}`),
	})
	if _, err := resolver.ResolveCredentials(context.Background(), "broken"); err == nil {
		t.Fatal("expected error for payload missing password")
	}
}

func TestResolveCredentialsUnknownSecret(t *testing.T) {
	t.Parallel()

	resolver, _ := NewResolver(StaticSource{})
	if _, err := resolver.ResolveCredentials(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown secret")
	}
}

func TestResolveCredentialsEmptyName(t *testing.T) {
	t.Parallel()

	resolver, _ := NewResolver(StaticSource{})
	_, err := resolver.ResolveCredentials(context.Background(), "  ")
	if !errors.Is(err, errSecretNameRequired) {
		t.Fatalf("expected errSecretNameRequired, got %v", err)
	}
}

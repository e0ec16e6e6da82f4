package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.DistributorSession{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc, err := NewService(ServiceParams{Repo: NewRepository(conn)})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func strPtr(s string) *string { return &s }

func TestApplyCreatesSessionWhenMissing(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	distID := uuid.New()

	err := svc.Apply(context.Background(), distID, Update{
		Cookies:   map[string]string{"JSESSIONID": "abc"},
		AuthToken: strPtr("token-1"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	session, err := svc.Get(context.Background(), distID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session == nil {
		t.Fatal("expected session to exist")
	}
	if session.Cookies["JSESSIONID"] != "abc" {
		t.Fatalf("unexpected cookies %v", session.Cookies)
	}
	if session.AuthToken == nil || *session.AuthToken != "token-1" {
		t.Fatalf("unexpected auth token %v", session.AuthToken)
	}
}

func TestApplyPartialUpdateLeavesOtherFieldsIntact(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	distID := uuid.New()
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	if err := svc.Apply(context.Background(), distID, Update{
		Cookies:   map[string]string{"sid": "one"},
		AuthToken: strPtr("token-1"),
		ExpiresAt: &expiry,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Only cookies change; token and expiry must survive.
	if err := svc.Apply(context.Background(), distID, Update{
		Cookies: map[string]string{"sid": "two"},
	}); err != nil {
		t.Fatalf("partial update: %v", err)
	}

	session, err := svc.Get(context.Background(), distID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.Cookies["sid"] != "two" {
		t.Fatalf("expected cookies updated, got %v", session.Cookies)
	}
	if session.AuthToken == nil || *session.AuthToken != "token-1" {
		t.Fatalf("expected auth token preserved, got %v", session.AuthToken)
	}
	if session.ExpiresAt == nil || !session.ExpiresAt.UTC().Equal(expiry) {
		t.Fatalf("expected expiry preserved, got %v", session.ExpiresAt)
	}
}

func TestApplyClearFlagsNullColumns(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	distID := uuid.New()
	expiry := time.Now().Add(time.Hour)

	if err := svc.Apply(context.Background(), distID, Update{
		AuthToken:    strPtr("token-1"),
		RefreshToken: strPtr("refresh-1"),
		ExpiresAt:    &expiry,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.Apply(context.Background(), distID, Update{
		ClearAuthToken:    true,
		ClearRefreshToken: true,
		ClearExpiresAt:    true,
	}); err != nil {
		t.Fatalf("clear: %v", err)
	}

	session, err := svc.Get(context.Background(), distID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.AuthToken != nil || session.RefreshToken != nil || session.ExpiresAt != nil {
		t.Fatalf("expected cleared columns, got %+v", session)
	}
}

func TestClearDeletesSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	distID := uuid.New()

	if err := svc.Apply(context.Background(), distID, Update{AuthToken: strPtr("t")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.Clear(context.Background(), distID); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	session, err := svc.Get(context.Background(), distID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session != nil {
		t.Fatal("expected session deleted")
	}
}

func TestTouchUpdatesLastUsed(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	distID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	if err := svc.Apply(context.Background(), distID, Update{AuthToken: strPtr("t")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.Touch(context.Background(), distID, now); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	session, _ := svc.Get(context.Background(), distID)
	if session.LastUsedAt == nil || !session.LastUsedAt.UTC().Equal(now) {
		t.Fatalf("expected last used %v, got %v", now, session.LastUsedAt)
	}
}

func TestIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if IsExpired(nil, now) != true {
		t.Fatal("nil session should read as expired")
	}
	if IsExpired(&models.DistributorSession{}, now) {
		t.Fatal("session without expiry should not expire locally")
	}
	if !IsExpired(&models.DistributorSession{ExpiresAt: &past}, now) {
		t.Fatal("past expiry should be expired")
	}
	if IsExpired(&models.DistributorSession{ExpiresAt: &future}, now) {
		t.Fatal("future expiry should be live")
	}
}

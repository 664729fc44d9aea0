package customers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/auth"
)

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	return c.now
}

func newDirectory(t *testing.T, clock *steppingClock) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "customers.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock.Now, TouchInterval: time.Minute})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func claimsFor(subject, email, name string) auth.SessionClaims {
	claims := auth.SessionClaims{CustomerEmail: email, CustomerName: name}
	claims.Subject = subject
	return claims
}

func TestRememberCreatesProfileOnce(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	service, db := newDirectory(t, clock)
	ctx := context.Background()

	customerID, err := service.Remember(ctx, claimsFor(" customer-1 ", "buyer@example.com", "Buyer"))
	if err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if customerID != "customer-1" {
		t.Fatalf("expected trimmed customer id, got %q", customerID)
	}

	clock.now = clock.now.Add(10 * time.Second)
	if _, err := service.Remember(ctx, claimsFor("customer-1", "buyer@example.com", "Buyer")); err != nil {
		t.Fatalf("second remember failed: %v", err)
	}

	var count int64
	if err := db.Model(&Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one profile, got %d", count)
	}
	var stored Profile
	if err := db.Take(&stored).Error; err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if stored.LastSeenSeconds != 1_700_000_000 {
		t.Fatalf("expected cached visit to skip the write, last seen %d", stored.LastSeenSeconds)
	}
}

func TestRememberRefreshesChangedProfile(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newDirectory(t, clock)
	ctx := context.Background()

	if _, err := service.Remember(ctx, claimsFor("customer-2", "old@example.com", "")); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	clock.now = clock.now.Add(5 * time.Second)
	if _, err := service.Remember(ctx, claimsFor("customer-2", "new@example.com", "New Name")); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	view, err := service.Get(ctx, "customer-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.Email != "new@example.com" || view.Name != "New Name" {
		t.Fatalf("expected refreshed profile, got %+v", view)
	}
	if view.FirstSeen != 1_700_000_000 {
		t.Fatalf("expected first seen to stay put, got %d", view.FirstSeen)
	}
}

func TestRememberRejectsEmptySubject(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1, 0)}
	service, _ := newDirectory(t, clock)

	if _, err := service.Remember(context.Background(), claimsFor("  ", "x@example.com", "")); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if _, err := service.Get(context.Background(), "nobody"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

package customers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/auth"
)

const defaultTouchInterval = time.Hour

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable customer id.
	ErrInvalidIdentity = errors.New("customers: invalid identity")
	// ErrProfileNotFound indicates a customer that never signed in.
	ErrProfileNotFound = errors.New("customers: profile not found")
)

// ServiceConfig describes the dependencies of the customer directory.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	// TouchInterval is how stale last_seen_s may get before an unchanged
	// profile is written again.
	TouchInterval time.Duration
	Logger        *zap.Logger
}

// Service keeps one profile per customer id.
type Service struct {
	db            *gorm.DB
	now           func() time.Time
	touchInterval time.Duration
	logger        *zap.Logger
	cache         sync.Map
}

type cachedProfile struct {
	email       string
	displayName string
	writtenAt   time.Time
}

// NewService constructs the directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("customers: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := cfg.TouchInterval
	if interval <= 0 {
		interval = defaultTouchInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, touchInterval: interval, logger: logger}, nil
}

// Remember creates or refreshes the profile behind the session claims.
// Unchanged profiles are written at most once per touch interval.
func (s *Service) Remember(ctx context.Context, claims auth.SessionClaims) (string, error) {
	customerID := claims.CustomerID()
	if customerID == "" {
		return "", ErrInvalidIdentity
	}
	email := normalize(claims.CustomerEmail)
	name := normalize(claims.CustomerName)
	now := s.now()

	if cached, ok := s.cache.Load(customerID); ok {
		entry, ok := cached.(cachedProfile)
		if ok && entry.email == email && entry.displayName == name && now.Sub(entry.writtenAt) < s.touchInterval {
			return customerID, nil
		}
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Take(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = Profile{
			CustomerID:       customerID,
			Email:            email,
			DisplayName:      name,
			FirstSeenSeconds: now.UTC().Unix(),
			LastSeenSeconds:  now.UTC().Unix(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			s.logger.Error("customer profile insert failed", zap.String("customer_id", customerID), zap.Error(err))
			return "", err
		}
	case err != nil:
		s.logger.Error("customer profile query failed", zap.String("customer_id", customerID), zap.Error(err))
		return "", err
	default:
		updates := map[string]any{"last_seen_s": now.UTC().Unix()}
		if email != "" && email != profile.Email {
			updates["customer_email"] = email
		}
		if name != "" && name != profile.DisplayName {
			updates["customer_name"] = name
		}
		if err := s.db.WithContext(ctx).Model(&Profile{}).Where("customer_id = ?", customerID).Updates(updates).Error; err != nil {
			s.logger.Warn("customer profile refresh failed", zap.String("customer_id", customerID), zap.Error(err))
		}
	}

	s.cache.Store(customerID, cachedProfile{email: email, displayName: name, writtenAt: now})
	return customerID, nil
}

// Get returns a stored profile.
func (s *Service) Get(ctx context.Context, customerID string) (View, error) {
	id := normalize(customerID)
	if id == "" {
		return View{}, ErrInvalidIdentity
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("customer_id = ?", id).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return View{}, err
	}
	return profile.view(), nil
}

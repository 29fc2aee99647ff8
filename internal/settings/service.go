package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/config"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

// Well-known setting keys. Values are stored as strings and parsed on read.
const (
	KeyPlatformFeePercent  = "platform_fee_percent"
	KeyAutoReleaseDays     = "auto_release_days"
	KeyDisputeDeadlineDays = "dispute_deadline_days"
)

const cacheTTL = 5 * time.Minute

type settingsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SettingsKey(name string) string
}

// Service resolves tunable platform knobs: DB override first, cached in
// redis, falling back to the static config defaults.
type Service struct {
	repo     Repository
	cache    settingsCache
	defaults config.Escrow
	logg     *logger.Logger
}

// NewService builds the settings service.
func NewService(repo Repository, cache settingsCache, defaults config.Escrow, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &Service{repo: repo, cache: cache, defaults: defaults, logg: logg}, nil
}

// PlatformFeePercent returns the platform's cut as a percentage.
// Stored overrides may carry fractions, e.g. "7.5".
func (s *Service) PlatformFeePercent(ctx context.Context) decimal.Decimal {
	fallback := decimal.NewFromInt(s.defaults.PlatformFeePercent)
	if raw, ok := s.cached(ctx, KeyPlatformFeePercent); ok {
		if parsed, err := decimal.NewFromString(raw); err == nil {
			return parsed
		}
	}

	setting, err := s.repo.Find(ctx, KeyPlatformFeePercent)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "setting", KeyPlatformFeePercent), "settings lookup failed, using default")
		}
		return fallback
	}

	parsed, err := decimal.NewFromString(setting.Value)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "setting", KeyPlatformFeePercent), "unparseable setting value, using default")
		}
		return fallback
	}

	s.store(ctx, KeyPlatformFeePercent, setting.Value)
	return parsed
}

// AutoReleaseDays returns how long held escrows wait before auto-release.
func (s *Service) AutoReleaseDays(ctx context.Context) int {
	return int(s.lookupInt(ctx, KeyAutoReleaseDays, int64(s.defaults.AutoReleaseDays)))
}

// DisputeDeadlineDays returns the buyer's dispute window after delivery.
func (s *Service) DisputeDeadlineDays(ctx context.Context) int {
	return int(s.lookupInt(ctx, KeyDisputeDeadlineDays, int64(s.defaults.DisputeDeadlineDays)))
}

func (s *Service) lookupInt(ctx context.Context, key string, fallback int64) int64 {
	if raw, ok := s.cached(ctx, key); ok {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return parsed
		}
	}

	setting, err := s.repo.Find(ctx, key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "setting", key), "settings lookup failed, using default")
		}
		return fallback
	}

	parsed, err := strconv.ParseInt(setting.Value, 10, 64)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "setting", key), "unparseable setting value, using default")
		}
		return fallback
	}

	s.store(ctx, key, setting.Value)
	return parsed
}

func (s *Service) cached(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	raw, err := s.cache.Get(ctx, s.cache.SettingsKey(key))
	if err != nil {
		return "", false
	}
	return raw, true
}

func (s *Service) store(ctx context.Context, key, value string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, s.cache.SettingsKey(key), value, cacheTTL)
}

// Package rates manages the global commission rate table and partner overrides.
package rates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partnerledger/internal/domain"
	"partnerledger/pkg/errors"
	"partnerledger/pkg/logger"
)

// Repository is the persistence contract for rate configuration.
type Repository interface {
	GetSettings(ctx context.Context) (*domain.CommissionSettings, error)
	SeedSettings(ctx context.Context, settings *domain.CommissionSettings) error
	UpdateSettings(ctx context.Context, rates domain.RateSet, updatedBy uuid.UUID, expectedVersion int64) (*domain.CommissionSettings, error)
	FindActiveOverride(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerOverride, error)
	ListOverrides(ctx context.Context, partnerID uuid.UUID) ([]*domain.PartnerOverride, error)
	ReplaceOverride(ctx context.Context, override *domain.PartnerOverride) error
	DeactivateOverride(ctx context.Context, partnerID uuid.UUID) error
}

type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
	}
}

var (
	minRate = decimal.Zero
	maxRate = decimal.NewFromInt(100)
)

// ValidateRateSet rejects a RateSet unless it defines a rate in [0, 100] for
// every known category in both buy and sell. Partial writes are not allowed:
// an override replaces the whole table for that partner.
func ValidateRateSet(rs domain.RateSet) error {
	for _, side := range []map[domain.Category]decimal.Decimal{rs.Buy, rs.Sell} {
		for _, category := range domain.Categories() {
			rate, ok := side[category]
			if !ok {
				return errors.ErrRateSetIncomplete
			}
			if rate.LessThan(minRate) || rate.GreaterThan(maxRate) {
				return errors.ErrRateOutOfRange
			}
		}
		for category := range side {
			if !domain.IsKnownCategory(category) {
				return errors.ErrUnknownCategory
			}
		}
	}
	return nil
}

// GetDefaultRates returns the current global rate configuration.
func (s *Service) GetDefaultRates(ctx context.Context) (*domain.CommissionSettings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateDefaultRates replaces the global rates. expectedVersion must match the
// stored version; a stale read is rejected with ErrStaleRateVersion instead of
// silently clobbering the other writer.
func (s *Service) UpdateDefaultRates(ctx context.Context, rateSet domain.RateSet, updatedBy uuid.UUID, expectedVersion int64) (*domain.CommissionSettings, error) {
	if err := ValidateRateSet(rateSet); err != nil {
		return nil, err
	}

	settings, err := s.repo.UpdateSettings(ctx, rateSet, updatedBy, expectedVersion)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Default commission rates updated", map[string]interface{}{
		"version":    settings.Version,
		"updated_by": updatedBy,
	})
	return settings, nil
}

// SetPartnerOverride installs a whole-object override for the partner. Any
// previously active override is deactivated, not deleted.
func (s *Service) SetPartnerOverride(ctx context.Context, partnerID uuid.UUID, rateSet domain.RateSet, createdBy uuid.UUID) (*domain.PartnerOverride, error) {
	if err := ValidateRateSet(rateSet); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	override := &domain.PartnerOverride{
		ID:        uuid.New(),
		PartnerID: partnerID,
		Rates:     rateSet,
		IsActive:  true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.ReplaceOverride(ctx, override); err != nil {
		return nil, err
	}

	s.logger.Info("Partner override set", map[string]interface{}{
		"partner_id":  partnerID,
		"override_id": override.ID,
	})
	return override, nil
}

// RemovePartnerOverride deactivates the partner's active override, reverting
// the partner to the global defaults.
func (s *Service) RemovePartnerOverride(ctx context.Context, partnerID uuid.UUID) error {
	if err := s.repo.DeactivateOverride(ctx, partnerID); err != nil {
		return err
	}

	s.logger.Info("Partner override removed", map[string]interface{}{
		"partner_id": partnerID,
	})
	return nil
}

// ListPartnerOverrides returns the partner's override history for audit display.
func (s *Service) ListPartnerOverrides(ctx context.Context, partnerID uuid.UUID) ([]*domain.PartnerOverride, error) {
	return s.repo.ListOverrides(ctx, partnerID)
}

// GetEffectiveRates resolves the rate set that applies to the partner: the
// active override when one exists, the global defaults otherwise.
func (s *Service) GetEffectiveRates(ctx context.Context, partnerID uuid.UUID) (domain.RateSet, error) {
	override, err := s.repo.FindActiveOverride(ctx, partnerID)
	if err == nil {
		return override.Rates, nil
	}
	if !errors.Is(err, errors.ErrOverrideNotFound) {
		return domain.RateSet{}, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.RateSet{}, err
	}
	return settings.DefaultRates, nil
}

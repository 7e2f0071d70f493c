package rates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"partnerledger/internal/domain"
	"partnerledger/pkg/errors"
	"partnerledger/pkg/logger"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetSettings(ctx context.Context) (*domain.CommissionSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CommissionSettings), args.Error(1)
}

func (m *MockRepository) SeedSettings(ctx context.Context, settings *domain.CommissionSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockRepository) UpdateSettings(ctx context.Context, rates domain.RateSet, updatedBy uuid.UUID, expectedVersion int64) (*domain.CommissionSettings, error) {
	args := m.Called(ctx, rates, updatedBy, expectedVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CommissionSettings), args.Error(1)
}

func (m *MockRepository) FindActiveOverride(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerOverride, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PartnerOverride), args.Error(1)
}

func (m *MockRepository) ListOverrides(ctx context.Context, partnerID uuid.UUID) ([]*domain.PartnerOverride, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PartnerOverride), args.Error(1)
}

func (m *MockRepository) ReplaceOverride(ctx context.Context, override *domain.PartnerOverride) error {
	args := m.Called(ctx, override)
	return args.Error(0)
}

func (m *MockRepository) DeactivateOverride(ctx context.Context, partnerID uuid.UUID) error {
	args := m.Called(ctx, partnerID)
	return args.Error(0)
}

// --- Helpers ---

func fullRateSet(rate int64) domain.RateSet {
	rs := domain.RateSet{
		Buy:  map[domain.Category]decimal.Decimal{},
		Sell: map[domain.Category]decimal.Decimal{},
	}
	for _, c := range domain.Categories() {
		rs.Buy[c] = decimal.NewFromInt(rate)
		rs.Sell[c] = decimal.NewFromInt(rate)
	}
	return rs
}

// --- Tests ---

func TestValidateRateSet(t *testing.T) {
	assert.NoError(t, ValidateRateSet(fullRateSet(5)))
	assert.NoError(t, ValidateRateSet(fullRateSet(0)))
	assert.NoError(t, ValidateRateSet(fullRateSet(100)))
}

func TestValidateRateSetMissingCategory(t *testing.T) {
	rs := fullRateSet(5)
	delete(rs.Buy, domain.CategoryAccessories)

	assert.ErrorIs(t, ValidateRateSet(rs), errors.ErrRateSetIncomplete)
}

func TestValidateRateSetOutOfRange(t *testing.T) {
	rs := fullRateSet(5)
	rs.Sell[domain.CategoryMobile] = decimal.NewFromInt(101)
	assert.ErrorIs(t, ValidateRateSet(rs), errors.ErrRateOutOfRange)

	rs.Sell[domain.CategoryMobile] = decimal.NewFromInt(-1)
	assert.ErrorIs(t, ValidateRateSet(rs), errors.ErrRateOutOfRange)
}

func TestValidateRateSetUnknownCategory(t *testing.T) {
	rs := fullRateSet(5)
	rs.Buy["spaceship"] = decimal.NewFromInt(5)

	assert.ErrorIs(t, ValidateRateSet(rs), errors.ErrUnknownCategory)
}

func TestGetEffectiveRatesPrefersActiveOverride(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())
	ctx := context.Background()
	partnerID := uuid.New()

	override := &domain.PartnerOverride{
		ID:        uuid.New(),
		PartnerID: partnerID,
		Rates:     fullRateSet(3),
		IsActive:  true,
	}
	mockRepo.On("FindActiveOverride", ctx, partnerID).Return(override, nil)

	rateSet, err := service.GetEffectiveRates(ctx, partnerID)

	assert.NoError(t, err)
	assert.True(t, rateSet.Buy[domain.CategoryMobile].Equal(decimal.NewFromInt(3)))
	mockRepo.AssertNotCalled(t, "GetSettings", mock.Anything)
}

func TestGetEffectiveRatesFallsBackToDefaults(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())
	ctx := context.Background()
	partnerID := uuid.New()

	mockRepo.On("FindActiveOverride", ctx, partnerID).Return(nil, errors.ErrOverrideNotFound)
	mockRepo.On("GetSettings", ctx).Return(&domain.CommissionSettings{
		DefaultRates: fullRateSet(5),
		Version:      2,
	}, nil)

	rateSet, err := service.GetEffectiveRates(ctx, partnerID)

	assert.NoError(t, err)
	assert.True(t, rateSet.Sell[domain.CategoryLaptop].Equal(decimal.NewFromInt(5)))
	mockRepo.AssertExpectations(t)
}

func TestGetEffectiveRatesFallsBackOnWrappedNotFound(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())
	ctx := context.Background()
	partnerID := uuid.New()

	mockRepo.On("FindActiveOverride", ctx, partnerID).
		Return(nil, errors.Wrap(errors.ErrOverrideNotFound, "lookup"))
	mockRepo.On("GetSettings", ctx).Return(&domain.CommissionSettings{
		DefaultRates: fullRateSet(5),
		Version:      1,
	}, nil)

	rateSet, err := service.GetEffectiveRates(ctx, partnerID)

	assert.NoError(t, err)
	assert.True(t, rateSet.Buy[domain.CategoryMobile].Equal(decimal.NewFromInt(5)))
	mockRepo.AssertExpectations(t)
}

func TestUpdateDefaultRatesRejectsInvalidSet(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())

	rs := fullRateSet(5)
	delete(rs.Sell, domain.CategoryTablet)

	_, err := service.UpdateDefaultRates(context.Background(), rs, uuid.New(), 1)

	assert.ErrorIs(t, err, errors.ErrRateSetIncomplete)
	mockRepo.AssertNotCalled(t, "UpdateSettings", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateDefaultRatesStaleVersion(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())
	ctx := context.Background()
	adminID := uuid.New()
	rs := fullRateSet(7)

	mockRepo.On("UpdateSettings", ctx, rs, adminID, int64(3)).Return(nil, errors.ErrStaleRateVersion)

	_, err := service.UpdateDefaultRates(ctx, rs, adminID, 3)

	assert.ErrorIs(t, err, errors.ErrStaleRateVersion)
}

func TestSetPartnerOverride(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())
	ctx := context.Background()
	partnerID := uuid.New()
	adminID := uuid.New()

	mockRepo.On("ReplaceOverride", ctx, mock.MatchedBy(func(o *domain.PartnerOverride) bool {
		return o.PartnerID == partnerID && o.IsActive && o.CreatedBy == adminID
	})).Return(nil)

	override, err := service.SetPartnerOverride(ctx, partnerID, fullRateSet(3), adminID)

	assert.NoError(t, err)
	assert.Equal(t, partnerID, override.PartnerID)
	assert.True(t, override.IsActive)
	mockRepo.AssertExpectations(t)
}

func TestRemovePartnerOverrideNotFound(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, logger.NewNop())
	ctx := context.Background()
	partnerID := uuid.New()

	mockRepo.On("DeactivateOverride", ctx, partnerID).Return(errors.ErrOverrideNotFound)

	err := service.RemovePartnerOverride(ctx, partnerID)

	assert.ErrorIs(t, err, errors.ErrOverrideNotFound)
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"partnerledger/internal/domain"
	"partnerledger/pkg/errors"
)

// RateRepository persists the global commission settings and partner overrides.
type RateRepository struct {
	db *sqlx.DB
}

func NewRateRepository(db *sqlx.DB) *RateRepository {
	return &RateRepository{db: db}
}

// GetSettings returns the singleton global rate configuration.
func (r *RateRepository) GetSettings(ctx context.Context) (*domain.CommissionSettings, error) {
	settings := &domain.CommissionSettings{}
	query := `
		SELECT id, default_rates, version, updated_by, updated_at, created_at
		FROM commission_settings LIMIT 1
	`
	err := r.db.GetContext(ctx, settings, query)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSettingsNotFound
		}
		return nil, errors.Persistence("find commission settings", err)
	}
	return settings, nil
}

// SeedSettings inserts the initial global rate row if none exists yet.
func (r *RateRepository) SeedSettings(ctx context.Context, settings *domain.CommissionSettings) error {
	query := `
		INSERT INTO commission_settings (
			id, default_rates, version, updated_by, updated_at, created_at
		) VALUES (
			:id, :default_rates, :version, :updated_by, :updated_at, :created_at
		)
		ON CONFLICT (singleton) DO NOTHING
	`
	_, err := r.db.NamedExecContext(ctx, query, settings)
	return errors.Persistence("seed commission settings", err)
}

// UpdateSettings replaces the global rates, guarded by a version check so two
// concurrent admin edits cannot silently clobber each other.
func (r *RateRepository) UpdateSettings(ctx context.Context, rates domain.RateSet, updatedBy uuid.UUID, expectedVersion int64) (*domain.CommissionSettings, error) {
	settings := &domain.CommissionSettings{}
	query := `
		UPDATE commission_settings SET
			default_rates = $1,
			version = version + 1,
			updated_by = $2,
			updated_at = $3
		WHERE version = $4
		RETURNING id, default_rates, version, updated_by, updated_at, created_at
	`
	err := r.db.GetContext(ctx, settings, query, rates, updatedBy, time.Now().UTC(), expectedVersion)
	if err == sql.ErrNoRows {
		// Either the row is missing or the caller read a stale version.
		if _, findErr := r.GetSettings(ctx); findErr != nil {
			return nil, findErr
		}
		return nil, errors.ErrStaleRateVersion
	}
	if err != nil {
		return nil, errors.Persistence("update commission settings", err)
	}
	return settings, nil
}

// FindActiveOverride returns the partner's active override, if any.
func (r *RateRepository) FindActiveOverride(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerOverride, error) {
	override := &domain.PartnerOverride{}
	query := `SELECT * FROM partner_overrides WHERE partner_id = $1 AND is_active = TRUE`
	err := r.db.GetContext(ctx, override, query, partnerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOverrideNotFound
		}
		return nil, errors.Persistence("find active override", err)
	}
	return override, nil
}

// ListOverrides returns the partner's override history, newest first.
func (r *RateRepository) ListOverrides(ctx context.Context, partnerID uuid.UUID) ([]*domain.PartnerOverride, error) {
	var overrides []*domain.PartnerOverride
	query := `SELECT * FROM partner_overrides WHERE partner_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &overrides, query, partnerID)
	if err != nil {
		return nil, errors.Persistence("list overrides", err)
	}
	return overrides, nil
}

// ReplaceOverride deactivates any active override for the partner and inserts
// the new one as active, in a single transaction. The old row is kept for audit.
func (r *RateRepository) ReplaceOverride(ctx context.Context, override *domain.PartnerOverride) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Persistence("begin replace override", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE partner_overrides SET is_active = FALSE, updated_at = NOW()
		WHERE partner_id = $1 AND is_active = TRUE
	`, override.PartnerID)
	if err != nil {
		return errors.Persistence("deactivate previous override", err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO partner_overrides (
			id, partner_id, rates, is_active, created_by, created_at, updated_at
		) VALUES (
			:id, :partner_id, :rates, :is_active, :created_by, :created_at, :updated_at
		)
	`, override)
	if err != nil {
		return errors.Persistence("insert override", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Persistence("commit replace override", err)
	}
	return nil
}

// DeactivateOverride retires the partner's active override without deleting it.
func (r *RateRepository) DeactivateOverride(ctx context.Context, partnerID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE partner_overrides SET is_active = FALSE, updated_at = NOW()
		WHERE partner_id = $1 AND is_active = TRUE
	`, partnerID)
	if err != nil {
		return errors.Persistence("deactivate override", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Persistence("deactivate override rows affected", err)
	}
	if rows == 0 {
		return errors.ErrOverrideNotFound
	}
	return nil
}

package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

// PricingRepository reads the operator-maintained pricing configuration.
// Scanners call GetSettings once per run rather than caching it.
type PricingRepository interface {
	GetSettings(ctx context.Context) (*models.PricingSettings, error)
}

type pricingRepo struct {
	db DB
}

func NewPricingRepository(db DB) PricingRepository {
	return &pricingRepo{db: db}
}

// GetSettings returns the singleton settings row, falling back to
// defaults when the row has never been created.
func (r *pricingRepo) GetSettings(ctx context.Context) (*models.PricingSettings, error) {
	row := r.db.QueryRow(ctx, `
        SELECT platform_fee_fraction, approval_window_minutes,
               auto_complete_grace_minutes, reminder_offsets_minutes
        FROM pricing_settings
        ORDER BY updated_at DESC
        LIMIT 1
    `)

	var (
		feeFraction float64
		windowMins  int32
		graceMins   int32
		offsets     []int32
	)
	err := row.Scan(&feeFraction, &windowMins, &graceMins, &offsets)
	if err == pgx.ErrNoRows {
		return models.DefaultPricingSettings(), nil
	}
	if err != nil {
		return nil, err
	}

	s := &models.PricingSettings{
		PlatformFeeFraction:    feeFraction,
		ApprovalWindow:         time.Duration(windowMins) * time.Minute,
		AutoCompleteGrace:      time.Duration(graceMins) * time.Minute,
		ReminderOffsetsMinutes: offsets,
	}
	if s.ApprovalWindow <= 0 {
		s.ApprovalWindow = models.DefaultPricingSettings().ApprovalWindow
	}
	if s.AutoCompleteGrace <= 0 {
		s.AutoCompleteGrace = models.DefaultPricingSettings().AutoCompleteGrace
	}
	if len(s.ReminderOffsetsMinutes) == 0 {
		s.ReminderOffsetsMinutes = models.DefaultPricingSettings().ReminderOffsetsMinutes
	}
	return s, nil
}

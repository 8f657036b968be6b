package repositories

import (
	"context"
	"time"

	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameCodeRepository provides access to virtual-item codes
type GameCodeRepository struct {
	db *gorm.DB
}

// NewGameCodeRepository creates a new code repository
func NewGameCodeRepository(db *gorm.DB) *GameCodeRepository {
	return &GameCodeRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GameCodeRepository) WithTx(tx *gorm.DB) *GameCodeRepository {
	return &GameCodeRepository{db: tx}
}

// ReserveFree locks up to limit free codes of the settings, oldest first.
// Rows locked by a concurrent reservation are skipped.
func (r *GameCodeRepository) ReserveFree(ctx context.Context, settingsID uint, limit int) ([]models.GameCode, error) {
	var codes []models.GameCode
	if limit <= 0 {
		return codes, nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("virtual_item_settings_id = ? AND order_id IS NULL", settingsID).
		Order("add_date, id").
		Limit(limit).
		Find(&codes).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to reserve free codes")
	}
	return codes, nil
}

// Bind assigns the codes to the order. Codes already bound are left untouched.
func (r *GameCodeRepository) Bind(ctx context.Context, codeIDs []uint, orderID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.GameCode{}).
		Where("id IN ? AND order_id IS NULL", codeIDs).
		Update("order_id", orderID)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to bind codes")
	}
	if result.RowsAffected != int64(len(codeIDs)) {
		return errors.Errorf("bound %d of %d codes", result.RowsAffected, len(codeIDs))
	}
	return nil
}

// Add stores new free codes for the settings
func (r *GameCodeRepository) Add(ctx context.Context, settingsID uint, codes []string) error {
	if len(codes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]models.GameCode, 0, len(codes))
	for _, code := range codes {
		rows = append(rows, models.GameCode{VirtualItemSettingsID: settingsID, Code: code, AddDate: now})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return errors.Wrap(err, "failed to add codes")
	}
	return nil
}

// CountFree returns the number of unbound codes of the settings
func (r *GameCodeRepository) CountFree(ctx context.Context, settingsID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GameCode{}).
		Where("virtual_item_settings_id = ? AND order_id IS NULL", settingsID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count free codes")
	}
	return count, nil
}

package repositories

import (
	"context"
	"time"

	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AuctionRepository provides access to auctions
type AuctionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *AuctionRepository {
	return &AuctionRepository{db: db, readOnlyDB: readOnlyDB}
}

// ListMonitored lists the seller's monitored auctions, queried fresh on every call
func (r *AuctionRepository) ListMonitored(ctx context.Context, userID uint) ([]models.Auction, error) {
	var auctions []models.Auction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_monitored = ?", userID, true).
		Order("id").
		Find(&auctions).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list monitored auctions")
	}
	return auctions, nil
}

// ListAutoFeedback lists the seller's monitored auctions with automatic feedback enabled
func (r *AuctionRepository) ListAutoFeedback(ctx context.Context, userID uint) ([]models.Auction, error) {
	var auctions []models.Auction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_monitored = ? AND automatic_feedback_enabled = ?", userID, true, true).
		Find(&auctions).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list automatic feedback auctions")
	}
	return auctions, nil
}

// ListAllegroIDs returns the marketplace ids of every auction the seller already has
func (r *AuctionRepository) ListAllegroIDs(ctx context.Context, userID uint) (map[int64]bool, error) {
	var ids []int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Auction{}).
		Where("user_id = ?", userID).
		Pluck("allegro_auction_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list auction ids")
	}

	known := make(map[int64]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

// Create inserts an auction
func (r *AuctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	if err := r.db.WithContext(ctx).Create(auction).Error; err != nil {
		return errors.Wrap(err, "failed to create auction")
	}
	return nil
}

// UpdateFees stores the billing figures of an auction
func (r *AuctionRepository) UpdateFees(ctx context.Context, id uint, fee, openCost float64) error {
	err := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"fee": fee, "open_cost": openCost}).Error
	if err != nil {
		return errors.Wrap(err, "failed to update auction fees")
	}
	return nil
}

// UpdateListing stores the refreshed listing state of an auction
func (r *AuctionRepository) UpdateListing(ctx context.Context, id uint, price float64, endDate time.Time, hasEnded bool) error {
	err := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"price_per_item": price,
			"end_date":       endDate,
			"has_ended":      hasEnded,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to update auction listing")
	}
	return nil
}

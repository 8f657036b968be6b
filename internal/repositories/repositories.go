package repositories

import (
	"context"

	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}

// UserRepository provides access to sellers
type UserRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB, readOnlyDB *gorm.DB) *UserRepository {
	return &UserRepository{db: db, readOnlyDB: readOnlyDB}
}

// WithTx returns a repository bound to the given transaction for reads and writes
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx, readOnlyDB: tx}
}

// GetByID gets a seller by ID from the write database
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "failed to get user by ID")
	}
	return &user, nil
}

// ListMonitoring lists sellers owning at least one monitored auction
func (r *UserRepository) ListMonitoring(ctx context.Context) ([]models.User, error) {
	return r.listWithAuctions(ctx, "auctions.is_monitored = ?", true)
}

// ListWithAutoFeedback lists sellers owning at least one monitored auction with automatic feedback
func (r *UserRepository) ListWithAutoFeedback(ctx context.Context) ([]models.User, error) {
	return r.listWithAuctions(ctx, "auctions.is_monitored = ? AND auctions.automatic_feedback_enabled = ?", true, true)
}

func (r *UserRepository) listWithAuctions(ctx context.Context, cond string, args ...interface{}) ([]models.User, error) {
	var users []models.User
	sub := r.db.Model(&models.Auction{}).Select("1").Where("auctions.user_id = users.id").Where(cond, args...)
	err := r.db.WithContext(ctx).
		Where("EXISTS (?)", sub).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}

// AdvanceJournalStart moves the seller's journal cursor forward; it never moves it back
func (r *UserRepository) AdvanceJournalStart(ctx context.Context, userID uint, cursor int64) error {
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND allegro_journal_start < ?", userID, cursor).
		Update("allegro_journal_start", cursor).Error
	if err != nil {
		return errors.Wrap(err, "failed to advance journal cursor")
	}
	return nil
}

// BuyerRepository provides access to buyers
type BuyerRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewBuyerRepository creates a new buyer repository
func NewBuyerRepository(db *gorm.DB, readOnlyDB *gorm.DB) *BuyerRepository {
	return &BuyerRepository{db: db, readOnlyDB: readOnlyDB}
}

// WithTx returns a repository bound to the given transaction
func (r *BuyerRepository) WithTx(tx *gorm.DB) *BuyerRepository {
	return &BuyerRepository{db: tx, readOnlyDB: tx}
}

// GetByAllegroUserID gets a buyer by the marketplace user id
func (r *BuyerRepository) GetByAllegroUserID(ctx context.Context, allegroUserID int64) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).Where("allegro_user_id = ?", allegroUserID).First(&buyer).Error
	if err != nil {
		return nil, notFound(err, "failed to get buyer")
	}
	return &buyer, nil
}

// Create inserts a buyer
func (r *BuyerRepository) Create(ctx context.Context, buyer *models.Buyer) error {
	if err := r.db.WithContext(ctx).Create(buyer).Error; err != nil {
		return errors.Wrap(err, "failed to create buyer")
	}
	return nil
}

// FeedbackRepository provides access to given feedback records
type FeedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *FeedbackRepository) WithTx(tx *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: tx}
}

// Exists reports whether feedback was already given for the buyer on the auction
func (r *FeedbackRepository) Exists(ctx context.Context, auctionID, buyerID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GivenFeedback{}).
		Where("auction_id = ? AND buyer_id = ?", auctionID, buyerID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check given feedback")
	}
	return count > 0, nil
}

// Claim inserts the association for the pair unless one exists. It reports
// false when another writer already holds the pair.
func (r *FeedbackRepository) Claim(ctx context.Context, feedback *models.GivenFeedback) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(feedback)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to record given feedback")
	}
	return res.RowsAffected > 0, nil
}

// SetRemoteID stores the marketplace id of a given feedback
func (r *FeedbackRepository) SetRemoteID(ctx context.Context, id uint, feedbackID int64) error {
	err := r.db.WithContext(ctx).
		Model(&models.GivenFeedback{}).
		Where("id = ?", id).
		Update("allegro_feedback_id", feedbackID).Error
	if err != nil {
		return errors.Wrap(err, "failed to store feedback id")
	}
	return nil
}

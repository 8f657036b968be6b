package repositories

import (
	"context"
	"time"

	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository provides access to orders and their transactions and events
type OrderRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, readOnlyDB *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db, readOnlyDB: readOnlyDB}
}

// WithTx returns a repository bound to the given transaction
func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx, readOnlyDB: tx}
}

// GetByID gets an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, notFound(err, "failed to get order")
	}
	return &order, nil
}

// GetByDealID gets an order by its marketplace deal id
func (r *OrderRepository) GetByDealID(ctx context.Context, dealID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("allegro_deal_id = ?", dealID).First(&order).Error
	if err != nil {
		return nil, notFound(err, "failed to get order by deal")
	}
	return &order, nil
}

// GetDetails loads an order with its auction, buyer, address and transactions
func (r *OrderRepository) GetDetails(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Auction").
		Preload("Buyer").
		Preload("ShippingAddress").
		Preload("Transactions").
		First(&order, id).Error
	if err != nil {
		return nil, notFound(err, "failed to get order details")
	}
	return &order, nil
}

// Create inserts an order
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return errors.Wrap(err, "failed to create order")
	}
	return nil
}

// UpdateStatus sets the order status
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("order_status", status).Error
	if err != nil {
		return errors.Wrap(err, "failed to update order status")
	}
	return nil
}

// MarkRefunded cancels the order and stores the refund id
func (r *OrderRepository) MarkRefunded(ctx context.Context, id uint, refundID int64) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"order_status":      models.OrderStatusCanceled,
			"allegro_refund_id": refundID,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark order refunded")
	}
	return nil
}

// MarkPaid sets the order Paid, clearing the refund id when asked to
func (r *OrderRepository) MarkPaid(ctx context.Context, id uint, clearRefund bool) error {
	updates := map[string]interface{}{"order_status": models.OrderStatusPaid}
	if clearRefund {
		updates["allegro_refund_id"] = nil
	}
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark order paid")
	}
	return nil
}

// SaveShippingAddress creates or replaces the order's shipping address
func (r *OrderRepository) SaveShippingAddress(ctx context.Context, address *models.ShippingAddress) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "company", "address", "post_code", "city", "phone", "message_to_seller"}),
		}).
		Create(address).Error
	if err != nil {
		return errors.Wrap(err, "failed to save shipping address")
	}
	return nil
}

// ListRefundable lists Created orders on automatic-refund auctions placed at or before the cutoff
func (r *OrderRepository) ListRefundable(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	refundable := r.db.Model(&models.Auction{}).Select("id").Where("automatic_refunds_enabled = ?", true)
	err := r.db.WithContext(ctx).
		Preload("Auction").
		Where("order_status = ? AND order_date <= ?", models.OrderStatusCreated, cutoff).
		Where("auction_id IN (?)", refundable).
		Order("id").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list refundable orders")
	}
	return orders, nil
}

// ListPaidVirtual lists Paid orders on monitored virtual-item auctions
func (r *OrderRepository) ListPaidVirtual(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	virtual := r.db.Model(&models.Auction{}).Select("id").Where("is_monitored = ? AND is_virtual_item = ?", true, true)
	err := r.db.WithContext(ctx).
		Preload("Auction.VirtualItemSettings").
		Preload("Buyer").
		Where("order_status = ?", models.OrderStatusPaid).
		Where("auction_id IN (?)", virtual).
		Order("id").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list paid virtual item orders")
	}
	return orders, nil
}

// ListByAuctionAndBuyer lists every order the buyer placed on the auction
func (r *OrderRepository) ListByAuctionAndBuyer(ctx context.Context, auctionID, buyerID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("auction_id = ? AND buyer_id = ?", auctionID, buyerID).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders for buyer")
	}
	return orders, nil
}

// CountByStatus returns the number of orders in each status
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	var rows []struct {
		OrderStatus models.OrderStatus
		Count       int64
	}
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Order{}).
		Select("order_status, count(*) as count").
		Group("order_status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count orders")
	}

	counts := make(map[models.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.OrderStatus] = row.Count
	}
	return counts, nil
}

// GetTransaction gets a transaction by its marketplace id
func (r *OrderRepository) GetTransaction(ctx context.Context, allegroTransactionID int64) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).
		Where("allegro_transaction_id = ?", allegroTransactionID).
		First(&transaction).Error
	if err != nil {
		return nil, notFound(err, "failed to get transaction")
	}
	return &transaction, nil
}

// CreateTransaction inserts a transaction
func (r *OrderRepository) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(transaction).Error; err != nil {
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

// UpdateTransactionStatus sets a transaction status
func (r *OrderRepository) UpdateTransactionStatus(ctx context.Context, id uint, status models.TransactionStatus) error {
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("transaction_status", status).Error
	if err != nil {
		return errors.Wrap(err, "failed to update transaction status")
	}
	return nil
}

// EventExists reports whether a journal event was already applied
func (r *OrderRepository) EventExists(ctx context.Context, allegroEventID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("allegro_event_id = ?", allegroEventID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check event")
	}
	return count > 0, nil
}

// CreateEvent appends an event to the order's audit trail
func (r *OrderRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return errors.Wrap(err, "failed to create event")
	}
	return nil
}

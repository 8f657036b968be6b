package services

import (
	"context"
	"time"

	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RefundService files refunds for orders left unpaid past the grace period
type RefundService struct {
	users       *repositories.UserRepository
	orders      *repositories.OrderRepository
	client      MarketplaceClient
	notifier    *Notifier
	metrics     *metrics.ProcessorMetrics
	gracePeriod time.Duration
	reasonID    int
	now         func() time.Time
}

// NewRefundService creates a new refund service
func NewRefundService(db, readOnlyDB *gorm.DB, client MarketplaceClient, notifier *Notifier, m *metrics.ProcessorMetrics, gracePeriod time.Duration, reasonID int) *RefundService {
	return &RefundService{
		users:       repositories.NewUserRepository(db, readOnlyDB),
		orders:      repositories.NewOrderRepository(db, readOnlyDB),
		client:      client,
		notifier:    notifier,
		metrics:     m,
		gracePeriod: gracePeriod,
		reasonID:    reasonID,
		now:         time.Now,
	}
}

// Process refunds every Created order older than the grace period on
// automatic-refund auctions. Each order is handled on its own; one failure
// does not stop the batch.
func (s *RefundService) Process(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.gracePeriod)
	orders, err := s.orders.ListRefundable(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	var sellers []uint
	bySeller := make(map[uint][]models.Order)
	for _, order := range orders {
		seller := order.Auction.UserID
		if _, ok := bySeller[seller]; !ok {
			sellers = append(sellers, seller)
		}
		bySeller[seller] = append(bySeller[seller], order)
	}

	var errs []error
	for _, sellerID := range sellers {
		user, err := s.users.GetByID(ctx, sellerID)
		if err != nil {
			return err
		}
		if err := login(ctx, s.client, user); err != nil {
			log.Warn().Err(err).Uint("user_id", sellerID).Msg("skipping refunds for seller")
			errs = append(errs, err)
			continue
		}

		for i := range bySeller[sellerID] {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.refund(ctx, sellerID, &bySeller[sellerID][i])
		}
	}
	return joinErrors(errs)
}

func (s *RefundService) refund(ctx context.Context, userID uint, order *models.Order) {
	logger := log.With().Uint("user_id", userID).Uint("order_id", order.ID).Int64("deal_id", order.AllegroDealID).Logger()

	refundID, err := s.client.SendRefund(ctx, userID, order.AllegroDealID, s.reasonID, order.Quantity)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send refund")
		s.count("failed")
		return
	}

	if err := s.orders.MarkRefunded(ctx, order.ID, refundID); err != nil {
		logger.Error().Err(err).Int64("refund_id", refundID).Msg("refund sent but order not updated")
		s.count("failed")
		return
	}

	logger.Info().Int64("refund_id", refundID).Msg("order refunded")
	s.count("ok")
	s.notifier.OrderChanged(ctx, order.ID, true)
}

func (s *RefundService) count(result string) {
	if s.metrics != nil {
		s.metrics.CountAction("refund", result)
	}
}

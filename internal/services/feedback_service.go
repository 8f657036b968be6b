package services

import (
	"context"

	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// FeedbackService answers buyers' positive feedback once all their orders are done
type FeedbackService struct {
	db       *gorm.DB
	users    *repositories.UserRepository
	auctions *repositories.AuctionRepository
	buyers   *repositories.BuyerRepository
	orders   *repositories.OrderRepository
	feedback *repositories.FeedbackRepository
	client   MarketplaceClient
	metrics  *metrics.ProcessorMetrics
	comment  string
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(db, readOnlyDB *gorm.DB, client MarketplaceClient, m *metrics.ProcessorMetrics, comment string) *FeedbackService {
	return &FeedbackService{
		db:       db,
		users:    repositories.NewUserRepository(db, readOnlyDB),
		auctions: repositories.NewAuctionRepository(db, readOnlyDB),
		buyers:   repositories.NewBuyerRepository(db, readOnlyDB),
		orders:   repositories.NewOrderRepository(db, readOnlyDB),
		feedback: repositories.NewFeedbackRepository(db),
		client:   client,
		metrics:  m,
		comment:  comment,
	}
}

// Process gives feedback for every seller with automatic-feedback auctions
func (s *FeedbackService) Process(ctx context.Context) error {
	users, err := s.users.ListWithAutoFeedback(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i := range users {
		if err := s.ProcessUser(ctx, &users[i]); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn().Err(err).Uint("user_id", users[i].ID).Msg("feedback failed for seller")
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// ProcessUser answers the seller's waiting feedback that is eligible
func (s *FeedbackService) ProcessUser(ctx context.Context, user *models.User) error {
	logger := log.With().Uint("user_id", user.ID).Logger()

	auctions, err := s.auctions.ListAutoFeedback(ctx, user.ID)
	if err != nil {
		return err
	}
	byRemoteID := make(map[int64]*models.Auction, len(auctions))
	for i := range auctions {
		byRemoteID[auctions[i].AllegroAuctionID] = &auctions[i]
	}

	if err := login(ctx, s.client, user); err != nil {
		return err
	}

	waiting, err := s.client.GetWaitingFeedback(ctx, user.ID)
	if err != nil {
		return err
	}

	type pair struct{ auction, buyer int64 }
	seen := make(map[pair]bool)
	for _, w := range waiting {
		auction, ok := byRemoteID[w.AuctionID]
		if !ok || !w.AwaitsReplyToPositive() {
			continue
		}
		key := pair{w.AuctionID, w.BuyerID}
		if seen[key] {
			continue
		}
		seen[key] = true

		if ctx.Err() != nil {
			return ctx.Err()
		}

		buyer, err := s.buyers.GetByAllegroUserID(ctx, w.BuyerID)
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Debug().Int64("buyer_id", w.BuyerID).Msg("buyer not known locally, skipping")
			continue
		}
		if err != nil {
			return err
		}

		l := logger.With().Uint("auction_id", auction.ID).Uint("buyer_id", buyer.ID).Logger()
		given, err := s.give(ctx, l, user.ID, auction, buyer)
		switch {
		case err != nil:
			l.Error().Err(err).Msg("failed to give feedback")
			s.count("failed")
		case given:
			s.count("ok")
		}
	}
	return nil
}

// give issues one positive feedback for the pair when every order of the
// buyer on the auction is done and none was given before. The association is
// inserted before the remote call in the same transaction, guarded by the
// unique index, and rolled back when the call fails.
func (s *FeedbackService) give(ctx context.Context, logger zerolog.Logger, userID uint, auction *models.Auction, buyer *models.Buyer) (bool, error) {
	given := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.feedback.WithTx(tx).Exists(ctx, auction.ID, buyer.ID)
		if err != nil {
			return err
		}
		if exists {
			logger.Debug().Msg("feedback already given")
			return nil
		}

		orders, err := s.orders.WithTx(tx).ListByAuctionAndBuyer(ctx, auction.ID, buyer.ID)
		if err != nil {
			return err
		}
		if !allDone(orders) {
			logger.Debug().Int("orders", len(orders)).Msg("buyer has unfinished orders, skipping")
			return nil
		}

		// The row is claimed before the remote call so a concurrent run skips the pair
		record := &models.GivenFeedback{AuctionID: auction.ID, BuyerID: buyer.ID}
		claimed, err := s.feedback.WithTx(tx).Claim(ctx, record)
		if err != nil {
			return err
		}
		if !claimed {
			logger.Debug().Msg("feedback already given")
			return nil
		}

		feedbackID, err := s.client.GivePositiveFeedback(ctx, userID, auction.AllegroAuctionID, buyer.AllegroUserID, s.comment)
		if err != nil {
			return err
		}
		if err := s.feedback.WithTx(tx).SetRemoteID(ctx, record.ID, feedbackID); err != nil {
			return err
		}

		logger.Info().Int64("feedback_id", feedbackID).Msg("positive feedback given")
		given = true
		return nil
	})
	return given, err
}

func allDone(orders []models.Order) bool {
	if len(orders) == 0 {
		return false
	}
	for _, o := range orders {
		if o.OrderStatus != models.OrderStatusDone {
			return false
		}
	}
	return true
}

func (s *FeedbackService) count(result string) {
	if s.metrics != nil {
		s.metrics.CountAction("feedback", result)
	}
}

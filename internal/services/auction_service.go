package services

import (
	"context"

	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AuctionService keeps local auctions in line with the marketplace listings
type AuctionService struct {
	users    *repositories.UserRepository
	auctions *repositories.AuctionRepository
	client   MarketplaceClient
}

// NewAuctionService creates a new auction service
func NewAuctionService(db, readOnlyDB *gorm.DB, client MarketplaceClient) *AuctionService {
	return &AuctionService{
		users:    repositories.NewUserRepository(db, readOnlyDB),
		auctions: repositories.NewAuctionRepository(db, readOnlyDB),
		client:   client,
	}
}

// Refresh updates fees and listing state of every monitored auction
func (s *AuctionService) Refresh(ctx context.Context) error {
	users, err := s.users.ListMonitoring(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i := range users {
		user := &users[i]
		if err := login(ctx, s.client, user); err != nil {
			log.Warn().Err(err).Uint("user_id", user.ID).Msg("skipping auction refresh for seller")
			errs = append(errs, err)
			continue
		}

		auctions, err := s.auctions.ListMonitored(ctx, user.ID)
		if err != nil {
			return err
		}
		for j := range auctions {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.refresh(ctx, user.ID, &auctions[j])
		}
	}
	return joinErrors(errs)
}

func (s *AuctionService) refresh(ctx context.Context, userID uint, auction *models.Auction) {
	logger := log.With().Uint("user_id", userID).Uint("auction_id", auction.ID).Logger()

	fees, err := s.client.UpdateAuctionFees(ctx, userID, auction.AllegroAuctionID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to fetch auction fees")
	} else if err := s.auctions.UpdateFees(ctx, auction.ID, fees.Fee, fees.OpenCost); err != nil {
		logger.Error().Err(err).Msg("failed to store auction fees")
	}

	ad, err := s.client.RefreshAd(ctx, userID, auction.AllegroAuctionID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to refresh auction listing")
		return
	}
	if err := s.auctions.UpdateListing(ctx, auction.ID, ad.Price, ad.EndDate, ad.HasEnded); err != nil {
		logger.Error().Err(err).Msg("failed to store auction listing")
		return
	}
	logger.Debug().Bool("has_ended", ad.HasEnded).Msg("auction refreshed")
}

// Import creates local auctions for the seller's listings that are not known
// yet. New auctions start unmonitored.
func (s *AuctionService) Import(ctx context.Context, userID uint) (int, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := login(ctx, s.client, user); err != nil {
		return 0, err
	}

	items, err := s.client.ListMyItems(ctx, userID)
	if err != nil {
		return 0, err
	}
	known, err := s.auctions.ListAllegroIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, item := range items {
		if known[item.AuctionID] {
			continue
		}
		auction := &models.Auction{
			UserID:           userID,
			AllegroAuctionID: item.AuctionID,
			Title:            item.Title,
			PricePerItem:     item.Price,
			EndDate:          item.EndDate,
		}
		if err := s.auctions.Create(ctx, auction); err != nil {
			return created, err
		}
		known[item.AuctionID] = true
		created++
	}

	log.Info().Uint("user_id", userID).Int("created", created).Int("listed", len(items)).Msg("auctions imported")
	return created, nil
}

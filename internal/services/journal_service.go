package services

import (
	"context"
	"strconv"

	"example.com/backstage/allegro/internal/marketplace"
	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// JournalService reconciles each seller's journal into orders, transactions and events
type JournalService struct {
	db       *gorm.DB
	users    *repositories.UserRepository
	auctions *repositories.AuctionRepository
	buyers   *repositories.BuyerRepository
	orders   *repositories.OrderRepository
	client   MarketplaceClient
	notifier *Notifier
	metrics  *metrics.ProcessorMetrics
}

// NewJournalService creates a new journal service
func NewJournalService(db, readOnlyDB *gorm.DB, client MarketplaceClient, notifier *Notifier, m *metrics.ProcessorMetrics) *JournalService {
	return &JournalService{
		db:       db,
		users:    repositories.NewUserRepository(db, readOnlyDB),
		auctions: repositories.NewAuctionRepository(db, readOnlyDB),
		buyers:   repositories.NewBuyerRepository(db, readOnlyDB),
		orders:   repositories.NewOrderRepository(db, readOnlyDB),
		client:   client,
		notifier: notifier,
		metrics:  m,
	}
}

// applied is the outcome of one journal entry
type applied struct {
	orderID       uint
	statusChanged bool
}

// Process reconciles the journal of every seller with a monitored auction.
// A failing seller does not stop the others; their errors are joined.
func (s *JournalService) Process(ctx context.Context) error {
	users, err := s.users.ListMonitoring(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i := range users {
		if err := s.ProcessUser(ctx, &users[i]); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn().Err(err).Uint("user_id", users[i].ID).Msg("journal reconciliation failed for seller")
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// ProcessUser applies the seller's journal entries after the persisted cursor.
// The cursor is committed together with every entry, so a failure resumes at
// the last applied entry.
func (s *JournalService) ProcessUser(ctx context.Context, user *models.User) error {
	logger := log.With().Uint("user_id", user.ID).Logger()

	if err := login(ctx, s.client, user); err != nil {
		return err
	}

	auctions, err := s.auctions.ListMonitored(ctx, user.ID)
	if err != nil {
		return err
	}
	monitored := make(map[int64]uint, len(auctions))
	for _, a := range auctions {
		monitored[a.AllegroAuctionID] = a.ID
	}

	cursor := user.AllegroJournalStart
	count := 0
	for entry, err := range s.client.Journal(ctx, user.ID, cursor) {
		if err != nil {
			return errors.Wrapf(err, "reading journal of seller %d", user.ID)
		}
		if entry.EventID <= cursor {
			continue
		}

		result, err := s.applyEntry(ctx, logger, user.ID, monitored, entry)
		if err != nil {
			return errors.Wrapf(err, "applying journal event %d", entry.EventID)
		}
		cursor = entry.EventID
		count++

		if result.orderID != 0 {
			s.notifier.OrderChanged(ctx, result.orderID, result.statusChanged)
		}
	}

	if s.metrics != nil {
		s.metrics.SetJournalCursor(strconv.FormatUint(uint64(user.ID), 10), cursor)
	}
	if count > 0 {
		logger.Info().Int("entries", count).Int64("cursor", cursor).Msg("journal reconciled")
	}
	return nil
}

// applyEntry applies one entry and advances the cursor in a single transaction
func (s *JournalService) applyEntry(ctx context.Context, logger zerolog.Logger, userID uint, monitored map[int64]uint, entry marketplace.JournalEntry) (applied, error) {
	var result applied
	logger = logger.With().
		Int64("event_id", entry.EventID).
		Int64("deal_id", entry.DealID).
		Str("event_type", entry.EventType.String()).
		Logger()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)

		seen, err := orders.EventExists(ctx, entry.EventID)
		if err != nil {
			return err
		}

		auctionID, ok := monitored[entry.AuctionID]
		switch {
		case seen:
			logger.Debug().Msg("event already applied")
		case !ok:
			logger.Debug().Int64("auction_id", entry.AuctionID).Msg("auction not monitored, skipping")
		default:
			result, err = s.apply(ctx, tx, logger, userID, auctionID, entry)
			if err != nil {
				return err
			}
		}

		if result.orderID != 0 {
			err := orders.CreateEvent(ctx, &models.Event{
				OrderID:        result.orderID,
				AllegroEventID: entry.EventID,
				EventType:      entry.EventType,
				EventTime:      entry.EventTime,
			})
			if err != nil {
				return err
			}
		}

		return s.users.WithTx(tx).AdvanceJournalStart(ctx, userID, entry.EventID)
	})
	if err != nil {
		return applied{}, err
	}
	return result, nil
}

func (s *JournalService) apply(ctx context.Context, tx *gorm.DB, logger zerolog.Logger, userID, auctionID uint, entry marketplace.JournalEntry) (applied, error) {
	switch entry.EventType {
	case models.EventDealCreated:
		return s.dealCreated(ctx, tx, logger, userID, auctionID, entry)
	case models.EventTransactionCreated:
		return s.transactionCreated(ctx, tx, logger, userID, entry)
	case models.EventTransactionCanceled:
		return s.transactionCanceled(ctx, tx, logger, entry)
	case models.EventTransactionFinished:
		return s.transactionFinished(ctx, tx, logger, userID, entry)
	default:
		logger.Warn().Int("type", int(entry.EventType)).Msg("unknown journal event type, skipping")
		return applied{}, nil
	}
}

func (s *JournalService) dealCreated(ctx context.Context, tx *gorm.DB, logger zerolog.Logger, userID, auctionID uint, entry marketplace.JournalEntry) (applied, error) {
	orders := s.orders.WithTx(tx)

	_, err := orders.GetByDealID(ctx, entry.DealID)
	if err == nil {
		logger.Debug().Msg("order already exists for deal, skipping")
		return applied{}, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return applied{}, err
	}

	buyer, err := s.buyer(ctx, tx, userID, entry)
	if err != nil {
		return applied{}, err
	}

	order := &models.Order{
		AuctionID:     auctionID,
		BuyerID:       buyer.ID,
		AllegroDealID: entry.DealID,
		Quantity:      entry.Quantity,
		OrderDate:     entry.EventTime,
		OrderStatus:   models.OrderStatusCreated,
	}
	if err := orders.Create(ctx, order); err != nil {
		return applied{}, err
	}

	logger.Info().Uint("order_id", order.ID).Int("quantity", order.Quantity).Msg("order created")
	return applied{orderID: order.ID, statusChanged: true}, nil
}

// buyer returns the local buyer of the entry, fetching and storing it on first sight
func (s *JournalService) buyer(ctx context.Context, tx *gorm.DB, userID uint, entry marketplace.JournalEntry) (*models.Buyer, error) {
	buyers := s.buyers.WithTx(tx)

	buyer, err := buyers.GetByAllegroUserID(ctx, entry.BuyerID)
	if err == nil {
		return buyer, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	data, err := s.client.FetchBuyerData(ctx, userID, entry.AuctionID, entry.BuyerID)
	if err != nil {
		return nil, err
	}

	buyer = &models.Buyer{
		AllegroUserID: data.UserID,
		UserLogin:     data.Login,
		FirstName:     data.FirstName,
		LastName:      data.LastName,
		Email:         data.Email,
		Phone:         data.Phone,
		Address:       data.Address,
		City:          data.City,
		PostCode:      data.PostCode,
		Company:       data.Company,
	}
	if err := buyers.Create(ctx, buyer); err != nil {
		return nil, err
	}
	return buyer, nil
}

func (s *JournalService) transactionCreated(ctx context.Context, tx *gorm.DB, logger zerolog.Logger, userID uint, entry marketplace.JournalEntry) (applied, error) {
	orders := s.orders.WithTx(tx)

	order, err := orders.GetByDealID(ctx, entry.DealID)
	if errors.Is(err, repositories.ErrNotFound) {
		logger.Debug().Msg("no order for deal, skipping transaction")
		return applied{}, nil
	}
	if err != nil {
		return applied{}, err
	}

	_, err = orders.GetTransaction(ctx, entry.TransactionID)
	if err == nil {
		logger.Debug().Int64("transaction_id", entry.TransactionID).Msg("transaction already recorded")
		return applied{}, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return applied{}, err
	}

	details, err := s.client.GetTransactionDetails(ctx, userID, entry.TransactionID)
	if errors.Is(err, marketplace.ErrTransactionNotFound) {
		logger.Warn().Int64("transaction_id", entry.TransactionID).Msg("transaction form not available, skipping")
		return applied{}, nil
	}
	if err != nil {
		return applied{}, err
	}

	err = orders.CreateTransaction(ctx, &models.Transaction{
		OrderID:              order.ID,
		AllegroTransactionID: entry.TransactionID,
		Amount:               details.Amount,
		TransactionStatus:    models.TransactionStatusCreated,
	})
	if err != nil {
		return applied{}, err
	}

	addr := details.ShippingAddress
	err = orders.SaveShippingAddress(ctx, &models.ShippingAddress{
		OrderID:         order.ID,
		FullName:        addr.FullName,
		Company:         addr.Company,
		Address:         addr.Address,
		PostCode:        addr.PostCode,
		City:            addr.City,
		Phone:           addr.Phone,
		MessageToSeller: details.MessageToSeller,
	})
	if err != nil {
		return applied{}, err
	}

	logger.Info().Uint("order_id", order.ID).Float64("amount", details.Amount).Msg("transaction created")
	return applied{orderID: order.ID}, nil
}

func (s *JournalService) transactionCanceled(ctx context.Context, tx *gorm.DB, logger zerolog.Logger, entry marketplace.JournalEntry) (applied, error) {
	orders := s.orders.WithTx(tx)

	transaction, err := orders.GetTransaction(ctx, entry.TransactionID)
	if errors.Is(err, repositories.ErrNotFound) {
		logger.Debug().Int64("transaction_id", entry.TransactionID).Msg("unknown transaction, skipping")
		return applied{}, nil
	}
	if err != nil {
		return applied{}, err
	}

	if err := orders.UpdateTransactionStatus(ctx, transaction.ID, models.TransactionStatusCanceled); err != nil {
		return applied{}, err
	}

	logger.Info().Uint("order_id", transaction.OrderID).Msg("transaction canceled")
	return applied{orderID: transaction.OrderID}, nil
}

func (s *JournalService) transactionFinished(ctx context.Context, tx *gorm.DB, logger zerolog.Logger, userID uint, entry marketplace.JournalEntry) (applied, error) {
	orders := s.orders.WithTx(tx)

	transaction, err := orders.GetTransaction(ctx, entry.TransactionID)
	if errors.Is(err, repositories.ErrNotFound) {
		logger.Debug().Int64("transaction_id", entry.TransactionID).Msg("unknown transaction, skipping")
		return applied{}, nil
	}
	if err != nil {
		return applied{}, err
	}

	if err := orders.UpdateTransactionStatus(ctx, transaction.ID, models.TransactionStatusFinished); err != nil {
		return applied{}, err
	}

	order, err := orders.GetByID(ctx, transaction.OrderID)
	if err != nil {
		return applied{}, err
	}
	logger = logger.With().Uint("order_id", order.ID).Logger()

	// Orders already past payment keep their status
	if !order.OrderStatus.CanBecomePaid() {
		logger.Info().Str("status", order.OrderStatus.String()).Msg("transaction finished on settled order")
		return applied{orderID: order.ID}, nil
	}

	clearRefund := false
	if order.AllegroRefundID != nil {
		cancelled, err := s.client.CancelRefund(ctx, userID, *order.AllegroRefundID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Int64("refund_id", *order.AllegroRefundID).Msg("failed to cancel refund, keeping refund id")
		case !cancelled:
			logger.Warn().Int64("refund_id", *order.AllegroRefundID).Msg("refund could not be cancelled, keeping refund id")
		default:
			clearRefund = true
		}
	}

	if err := orders.MarkPaid(ctx, order.ID, clearRefund); err != nil {
		return applied{}, err
	}

	logger.Info().Bool("refund_cleared", clearRefund).Msg("order paid")
	return applied{orderID: order.ID, statusChanged: true}, nil
}

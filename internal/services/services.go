package services

import (
	"context"
	stderrors "errors"
	"iter"

	"example.com/backstage/allegro/internal/marketplace"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MarketplaceClient is the part of the marketplace client the processors use
type MarketplaceClient interface {
	Login(ctx context.Context, userID uint, creds marketplace.Credentials) error
	Journal(ctx context.Context, userID uint, start int64) iter.Seq2[marketplace.JournalEntry, error]
	FetchBuyerData(ctx context.Context, userID uint, auctionID, buyerID int64) (*marketplace.BuyerData, error)
	GetTransactionDetails(ctx context.Context, userID uint, transactionID int64) (*marketplace.TransactionDetails, error)
	SendRefund(ctx context.Context, userID uint, dealID int64, reasonID, quantity int) (int64, error)
	CancelRefund(ctx context.Context, userID uint, refundID int64) (bool, error)
	GetWaitingFeedback(ctx context.Context, userID uint) ([]marketplace.WaitingFeedback, error)
	GivePositiveFeedback(ctx context.Context, userID uint, auctionID, buyerID int64, comment string) (int64, error)
	UpdateAuctionFees(ctx context.Context, userID uint, auctionID int64) (marketplace.AuctionFees, error)
	RefreshAd(ctx context.Context, userID uint, auctionID int64) (*marketplace.AdInfo, error)
	ListMyItems(ctx context.Context, userID uint) ([]marketplace.Item, error)
}

// OrderIndexer mirrors orders into a search index
type OrderIndexer interface {
	IndexOrder(ctx context.Context, order *models.Order) error
}

// StatusPublisher announces order status changes
type StatusPublisher interface {
	PublishOrderStatus(ctx context.Context, order *models.Order) error
}

func credentialsFor(user *models.User) marketplace.Credentials {
	return marketplace.Credentials{
		Login:        user.AllegroUserName,
		PasswordHash: user.AllegroHashedPass,
		WebapiKey:    user.AllegroKey,
	}
}

// login reuses the seller's cached session and performs the handshake only when it is missing
func login(ctx context.Context, client MarketplaceClient, user *models.User) error {
	if err := client.Login(ctx, user.ID, credentialsFor(user)); err != nil {
		return errors.Wrapf(err, "logging in seller %d", user.ID)
	}
	return nil
}

// joinErrors combines per-seller failures; nil when there are none
func joinErrors(errs []error) error {
	return stderrors.Join(errs...)
}

// Notifier pushes changed orders to the search index and the status bus.
// Failures are logged; the database stays the source of truth.
type Notifier struct {
	orders    *repositories.OrderRepository
	indexer   OrderIndexer
	publisher StatusPublisher
}

// NewNotifier creates a notifier; indexer and publisher may be nil
func NewNotifier(orders *repositories.OrderRepository, indexer OrderIndexer, publisher StatusPublisher) *Notifier {
	return &Notifier{orders: orders, indexer: indexer, publisher: publisher}
}

// OrderChanged re-indexes the order and publishes its status when it changed
func (n *Notifier) OrderChanged(ctx context.Context, orderID uint, statusChanged bool) {
	if n == nil || (n.indexer == nil && (n.publisher == nil || !statusChanged)) {
		return
	}

	order, err := n.orders.GetDetails(ctx, orderID)
	if err != nil {
		log.Warn().Err(err).Uint("order_id", orderID).Msg("failed to load order for notification")
		return
	}

	if n.indexer != nil {
		if err := n.indexer.IndexOrder(ctx, order); err != nil {
			log.Warn().Err(err).Uint("order_id", orderID).Msg("failed to index order")
		}
	}
	if statusChanged && n.publisher != nil {
		if err := n.publisher.PublishOrderStatus(ctx, order); err != nil {
			log.Warn().Err(err).Uint("order_id", orderID).Msg("failed to publish order status")
		}
	}
}

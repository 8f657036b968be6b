package services

import (
	"context"
	"iter"
	"sync"

	"example.com/backstage/allegro/internal/mailer"
	"example.com/backstage/allegro/internal/marketplace"
	"example.com/backstage/allegro/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Login(ctx context.Context, userID uint, creds marketplace.Credentials) error {
	return m.Called(ctx, userID, creds).Error(0)
}

func (m *mockClient) Journal(ctx context.Context, userID uint, start int64) iter.Seq2[marketplace.JournalEntry, error] {
	return m.Called(ctx, userID, start).Get(0).(iter.Seq2[marketplace.JournalEntry, error])
}

func (m *mockClient) FetchBuyerData(ctx context.Context, userID uint, auctionID, buyerID int64) (*marketplace.BuyerData, error) {
	args := m.Called(ctx, userID, auctionID, buyerID)
	data, _ := args.Get(0).(*marketplace.BuyerData)
	return data, args.Error(1)
}

func (m *mockClient) GetTransactionDetails(ctx context.Context, userID uint, transactionID int64) (*marketplace.TransactionDetails, error) {
	args := m.Called(ctx, userID, transactionID)
	details, _ := args.Get(0).(*marketplace.TransactionDetails)
	return details, args.Error(1)
}

func (m *mockClient) SendRefund(ctx context.Context, userID uint, dealID int64, reasonID, quantity int) (int64, error) {
	args := m.Called(ctx, userID, dealID, reasonID, quantity)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockClient) CancelRefund(ctx context.Context, userID uint, refundID int64) (bool, error) {
	args := m.Called(ctx, userID, refundID)
	return args.Bool(0), args.Error(1)
}

func (m *mockClient) GetWaitingFeedback(ctx context.Context, userID uint) ([]marketplace.WaitingFeedback, error) {
	args := m.Called(ctx, userID)
	waiting, _ := args.Get(0).([]marketplace.WaitingFeedback)
	return waiting, args.Error(1)
}

func (m *mockClient) GivePositiveFeedback(ctx context.Context, userID uint, auctionID, buyerID int64, comment string) (int64, error) {
	args := m.Called(ctx, userID, auctionID, buyerID, comment)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockClient) UpdateAuctionFees(ctx context.Context, userID uint, auctionID int64) (marketplace.AuctionFees, error) {
	args := m.Called(ctx, userID, auctionID)
	return args.Get(0).(marketplace.AuctionFees), args.Error(1)
}

func (m *mockClient) RefreshAd(ctx context.Context, userID uint, auctionID int64) (*marketplace.AdInfo, error) {
	args := m.Called(ctx, userID, auctionID)
	ad, _ := args.Get(0).(*marketplace.AdInfo)
	return ad, args.Error(1)
}

func (m *mockClient) ListMyItems(ctx context.Context, userID uint) ([]marketplace.Item, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]marketplace.Item)
	return items, args.Error(1)
}

// journalOf replays fixed entries, ending with err when it is not nil
func journalOf(err error, entries ...marketplace.JournalEntry) iter.Seq2[marketplace.JournalEntry, error] {
	return func(yield func(marketplace.JournalEntry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
		if err != nil {
			yield(marketplace.JournalEntry{}, err)
		}
	}
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg mailer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []int64
}

func (r *recordingIndexer) IndexOrder(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, order.AllegroDealID)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []models.OrderStatus
}

func (r *recordingPublisher) PublishOrderStatus(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, order.OrderStatus)
	return nil
}

package services

import (
	"context"
	"testing"
	"time"

	"example.com/backstage/allegro/internal/database/dbtest"
	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRefundProcessorFilters(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	user := seedUser(t, db)
	auto := seedAuction(t, db, user.ID, 500, models.Auction{IsMonitored: true, AutomaticRefundsEnabled: true})
	manual := seedAuction(t, db, user.ID, 600, models.Auction{IsMonitored: true})
	buyer := seedBuyer(t, db, 77)

	old := seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 1, Quantity: 3, OrderDate: now.Add(-8 * 24 * time.Hour)})
	exactly := seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 2, OrderDate: now.Add(-7 * 24 * time.Hour)})
	young := seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 3, OrderDate: now.Add(-6 * 24 * time.Hour)})
	paid := seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 4, OrderStatus: models.OrderStatusPaid, OrderDate: now.Add(-30 * 24 * time.Hour)})
	notAuto := seedOrder(t, db, models.Order{AuctionID: manual.ID, BuyerID: buyer.ID, AllegroDealID: 5, OrderDate: now.Add(-30 * 24 * time.Hour)})

	client := new(mockClient)
	client.On("Login", mock.Anything, user.ID, mock.Anything).Return(nil).Once()
	client.On("SendRefund", mock.Anything, user.ID, int64(1), 3, 3).Return(int64(9001), nil).Once()
	client.On("SendRefund", mock.Anything, user.ID, int64(2), 3, 1).Return(int64(9002), nil).Once()

	publisher := &recordingPublisher{}
	svc := NewRefundService(db, db, client, newTestNotifier(db, publisher), nil, 7*24*time.Hour, 3)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Process(ctx))
	client.AssertExpectations(t)

	assertOrder := func(id uint, status models.OrderStatus, refundID *int64) {
		t.Helper()
		var o models.Order
		require.NoError(t, db.First(&o, id).Error)
		require.Equal(t, status, o.OrderStatus)
		if refundID == nil {
			require.Nil(t, o.AllegroRefundID)
		} else {
			require.NotNil(t, o.AllegroRefundID)
			require.Equal(t, *refundID, *o.AllegroRefundID)
		}
	}
	r1, r2 := int64(9001), int64(9002)
	assertOrder(old.ID, models.OrderStatusCanceled, &r1)
	assertOrder(exactly.ID, models.OrderStatusCanceled, &r2)
	assertOrder(young.ID, models.OrderStatusCreated, nil)
	assertOrder(paid.ID, models.OrderStatusPaid, nil)
	assertOrder(notAuto.ID, models.OrderStatusCreated, nil)

	require.Equal(t, []models.OrderStatus{models.OrderStatusCanceled, models.OrderStatusCanceled}, publisher.statuses)
}

func TestRefundFailureDoesNotStopBatch(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	user := seedUser(t, db)
	auto := seedAuction(t, db, user.ID, 500, models.Auction{IsMonitored: true, AutomaticRefundsEnabled: true})
	buyer := seedBuyer(t, db, 77)
	failing := seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 1, OrderDate: now.Add(-10 * 24 * time.Hour)})
	ok := seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 2, OrderDate: now.Add(-10 * 24 * time.Hour)})

	client := new(mockClient)
	client.On("Login", mock.Anything, user.ID, mock.Anything).Return(nil)
	client.On("SendRefund", mock.Anything, user.ID, int64(1), 3, 1).Return(int64(0), errors.New("form rejected"))
	client.On("SendRefund", mock.Anything, user.ID, int64(2), 3, 1).Return(int64(42), nil)

	svc := NewRefundService(db, db, client, nil, nil, 7*24*time.Hour, 3)
	svc.now = func() time.Time { return now }
	require.NoError(t, svc.Process(ctx))

	var kept models.Order
	require.NoError(t, db.First(&kept, failing.ID).Error)
	require.Equal(t, models.OrderStatusCreated, kept.OrderStatus)
	require.Nil(t, kept.AllegroRefundID)

	var refunded models.Order
	require.NoError(t, db.First(&refunded, ok.ID).Error)
	require.Equal(t, models.OrderStatusCanceled, refunded.OrderStatus)
	require.NotNil(t, refunded.AllegroRefundID)
	require.Equal(t, int64(42), *refunded.AllegroRefundID)
}

func TestRefundLoginFailureSkipsSeller(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	user := seedUser(t, db)
	auto := seedAuction(t, db, user.ID, 500, models.Auction{IsMonitored: true, AutomaticRefundsEnabled: true})
	buyer := seedBuyer(t, db, 77)
	seedOrder(t, db, models.Order{AuctionID: auto.ID, BuyerID: buyer.ID, AllegroDealID: 1, OrderDate: now.Add(-10 * 24 * time.Hour)})

	client := new(mockClient)
	client.On("Login", mock.Anything, user.ID, mock.Anything).Return(errors.New("bad password"))

	svc := NewRefundService(db, db, client, nil, nil, 7*24*time.Hour, 3)
	svc.now = func() time.Time { return now }
	require.ErrorContains(t, svc.Process(ctx), "bad password")
	client.AssertNotCalled(t, "SendRefund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

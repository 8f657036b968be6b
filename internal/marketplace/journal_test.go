package marketplace

import (
	"context"
	"testing"

	"example.com/backstage/allegro/internal/models"

	"github.com/stretchr/testify/require"
)

// journalPages serves consecutive event ids after journalStart, total entries in all
func journalPages(total int64) handlerFunc {
	return func(req interface{}) (interface{}, error) {
		start := req.(journalRequest).JournalStart
		deals := make([]map[string]interface{}, 0, 100)
		for id := start + 1; id <= total && len(deals) < 100; id++ {
			deals = append(deals, map[string]interface{}{
				"dealEventId":   id,
				"dealEventType": int(models.EventDealCreated),
				"dealEventTime": 1700000000 + id,
				"dealId":        id * 10,
				"dealItemId":    5,
				"dealBuyerId":   9,
				"dealQuantity":  1,
			})
		}
		return map[string]interface{}{"siteJournalDeals": deals}, nil
	}
}

func TestJournalPagesUntilShortPage(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetSiteJournalDeals, journalPages(203))
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	var ids []int64
	for entry, err := range client.Journal(context.Background(), 1, 0) {
		require.NoError(t, err)
		ids = append(ids, entry.EventID)
	}

	require.Len(t, ids, 203)
	require.Equal(t, int64(1), ids[0])
	require.Equal(t, int64(203), ids[202])
	require.Equal(t, 3, transport.count(opGetSiteJournalDeals))

	starts := []int64{}
	for _, req := range transport.requests[opGetSiteJournalDeals] {
		starts = append(starts, req.(journalRequest).JournalStart)
	}
	require.Equal(t, []int64{0, 100, 200}, starts)
}

func TestJournalResumesFromCursor(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetSiteJournalDeals, journalPages(120))
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	var first JournalEntry
	count := 0
	for entry, err := range client.Journal(context.Background(), 1, 110) {
		require.NoError(t, err)
		if count == 0 {
			first = entry
		}
		count++
	}

	require.Equal(t, 10, count)
	require.Equal(t, int64(111), first.EventID)
	require.Equal(t, models.EventDealCreated, first.EventType)
	require.Equal(t, int64(1110), first.DealID)
	require.Equal(t, int64(5), first.AuctionID)
}

func TestJournalStopsWhenConsumerBreaks(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetSiteJournalDeals, journalPages(500))
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	for entry, err := range client.Journal(context.Background(), 1, 0) {
		require.NoError(t, err)
		if entry.EventID == 5 {
			break
		}
	}
	require.Equal(t, 1, transport.count(opGetSiteJournalDeals))
}

func TestJournalYieldsFetchError(t *testing.T) {
	transport := newFakeTransport()
	transport.acceptLogin("s")
	transport.on(opGetSiteJournalDeals, func(interface{}) (interface{}, error) {
		return nil, ErrTimeout
	})
	client := NewClient(transport, nil, Options{})
	require.NoError(t, client.Login(context.Background(), 1, testCreds))

	var errs []error
	for _, err := range client.Journal(context.Background(), 1, 0) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrTimeout)
	require.True(t, IsTransient(errs[0]))
}

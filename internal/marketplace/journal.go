package marketplace

import (
	"context"
	"iter"
	"time"

	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
)

// JournalEntry is one deal event from a seller's journal
type JournalEntry struct {
	EventID       int64
	EventType     models.EventType
	EventTime     time.Time
	DealID        int64
	TransactionID int64
	SellerID      int64
	AuctionID     int64
	BuyerID       int64
	Quantity      int
}

// Journal lazily yields the seller's journal entries after start, in journal
// order. Pages are fetched on demand; after each page the cursor moves to the
// last entry's id and iteration stops once a page comes back short. A fetch
// error is yielded once and ends the sequence.
func (c *Client) Journal(ctx context.Context, userID uint, start int64) iter.Seq2[JournalEntry, error] {
	return func(yield func(JournalEntry, error) bool) {
		cursor := start
		for {
			var page journalResponse
			err := c.call(ctx, userID, opGetSiteJournalDeals, func(handle string) interface{} {
				return journalRequest{SessionID: handle, JournalStart: cursor}
			}, &page)
			if err != nil {
				yield(JournalEntry{}, errors.Wrapf(err, "journal page after %d", cursor))
				return
			}

			for _, deal := range page.SiteJournalDeals {
				if !yield(deal.entry(), nil) {
					return
				}
			}

			if len(page.SiteJournalDeals) < c.opts.JournalPageSize {
				return
			}
			cursor = page.SiteJournalDeals[len(page.SiteJournalDeals)-1].DealEventID
		}
	}
}

func (d wireDeal) entry() JournalEntry {
	return JournalEntry{
		EventID:       d.DealEventID,
		EventType:     models.EventType(d.DealEventType),
		EventTime:     time.Unix(d.DealEventTime, 0).UTC(),
		DealID:        d.DealID,
		TransactionID: d.DealTransactionID,
		SellerID:      d.DealSellerID,
		AuctionID:     d.DealItemID,
		BuyerID:       d.DealBuyerID,
		Quantity:      d.DealQuantity,
	}
}

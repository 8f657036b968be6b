// Package processors wires the periodic order processors to the scheduler harness.
package processors

import (
	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/scheduler"
	"example.com/backstage/allegro/internal/services"
)

// Processor names, also used as job names and metric labels
const (
	Journal        = "journal"
	VirtualItem    = "virtual_item_email"
	Refund         = "refund"
	Feedback       = "feedback"
	AuctionRefresh = "auction_refresh"
)

// Services are the units of work behind the processors
type Services struct {
	Journal     *services.JournalService
	VirtualItem *services.VirtualItemService
	Refund      *services.RefundService
	Feedback    *services.FeedbackService
	Auctions    *services.AuctionService
}

// Build returns the processors with their configured cadence
func Build(cfg config.ProcessorsConfig, svc Services) []scheduler.Processor {
	return []scheduler.Processor{
		{Name: Journal, Interval: cfg.JournalInterval, Work: svc.Journal.Process},
		{Name: VirtualItem, Interval: cfg.VirtualItemInterval, Delay: cfg.VirtualItemDelay, Work: svc.VirtualItem.Process},
		{Name: Refund, Interval: cfg.RefundInterval, Work: svc.Refund.Process},
		{Name: Feedback, Interval: cfg.FeedbackInterval, Work: svc.Feedback.Process},
		{Name: AuctionRefresh, Interval: cfg.AuctionRefreshInterval, Work: svc.Auctions.Refresh},
	}
}

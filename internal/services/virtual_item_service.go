package services

import (
	"context"
	"strconv"
	"strings"

	"example.com/backstage/allegro/internal/mailer"
	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var errInsufficientCodes = errors.New("not enough free codes")

// VirtualItemService emails codes for paid virtual-item orders
type VirtualItemService struct {
	db       *gorm.DB
	orders   *repositories.OrderRepository
	codes    *repositories.GameCodeRepository
	sender   mailer.Sender
	notifier *Notifier
	metrics  *metrics.ProcessorMetrics
}

// NewVirtualItemService creates a new virtual item service
func NewVirtualItemService(db, readOnlyDB *gorm.DB, sender mailer.Sender, notifier *Notifier, m *metrics.ProcessorMetrics) *VirtualItemService {
	return &VirtualItemService{
		db:       db,
		orders:   repositories.NewOrderRepository(db, readOnlyDB),
		codes:    repositories.NewGameCodeRepository(db),
		sender:   sender,
		notifier: notifier,
		metrics:  m,
	}
}

// Process delivers codes for every paid order on a monitored virtual-item auction
func (s *VirtualItemService) Process(ctx context.Context) error {
	orders, err := s.orders.ListPaidVirtual(ctx)
	if err != nil {
		return err
	}

	for i := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		order := &orders[i]
		if err := s.Deliver(ctx, order); err != nil {
			log.Error().Err(err).Uint("order_id", order.ID).Msg("failed to deliver virtual item")
		}
	}
	return nil
}

// Deliver reserves quantity × converter codes, emails them and marks the
// order done. Nothing is sent when there are not enough codes, and the codes
// stay free unless the email went out.
func (s *VirtualItemService) Deliver(ctx context.Context, order *models.Order) error {
	logger := log.With().Uint("order_id", order.ID).Uint("auction_id", order.AuctionID).Logger()

	settings := order.Auction.VirtualItemSettings
	if settings == nil {
		logger.Warn().Msg("virtual item auction has no settings, skipping")
		return nil
	}

	converter := settings.ItemsConverter
	if converter < 1 {
		converter = 1
	}
	required := order.Quantity * converter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		codes := s.codes.WithTx(tx)

		reserved, err := codes.ReserveFree(ctx, settings.ID, required)
		if err != nil {
			return err
		}
		if len(reserved) < required {
			return errors.Wrapf(errInsufficientCodes, "need %d, have %d", required, len(reserved))
		}

		msg := mailer.Message{
			To:          order.Buyer.Email,
			Subject:     settings.MessageSubject,
			Body:        RenderMessage(settings, order, reserved),
			ReplyTo:     settings.ReplyTo,
			DisplayName: settings.DisplayName,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			return errors.Wrap(err, "sending codes")
		}

		ids := make([]uint, 0, len(reserved))
		for _, c := range reserved {
			ids = append(ids, c.ID)
		}
		if err := codes.Bind(ctx, ids, order.ID); err != nil {
			return err
		}
		return s.orders.WithTx(tx).UpdateStatus(ctx, order.ID, models.OrderStatusDone)
	})
	if errors.Is(err, errInsufficientCodes) {
		logger.Warn().Err(err).Msg("not enough codes, order left paid")
		s.count("insufficient_codes")
		return nil
	}
	if err != nil {
		s.count("failed")
		return err
	}

	logger.Info().Int("codes", required).Msg("virtual item delivered")
	s.count("ok")
	s.notifier.OrderChanged(ctx, order.ID, true)
	return nil
}

// RenderMessage fills the template placeholders {{firstName}}, {{lastName}},
// {{quantity}} and {{codes}}
func RenderMessage(settings *models.VirtualItemSettings, order *models.Order, codes []models.GameCode) string {
	values := make([]string, 0, len(codes))
	for _, c := range codes {
		values = append(values, c.Code)
	}

	separator := settings.CodeSeparator
	if separator == "" {
		separator = "\n"
	}

	return strings.NewReplacer(
		"{{firstName}}", order.Buyer.FirstName,
		"{{lastName}}", order.Buyer.LastName,
		"{{quantity}}", strconv.Itoa(order.Quantity),
		"{{codes}}", strings.Join(values, separator),
	).Replace(settings.MessageTemplate)
}

func (s *VirtualItemService) count(result string) {
	if s.metrics != nil {
		s.metrics.CountAction("virtual_item_email", result)
	}
}

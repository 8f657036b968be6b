package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/models"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ServiceBusClient is an interface for Azure Service Bus operations
type ServiceBusClient interface {
	SendMessage(ctx context.Context, subject string, body interface{}) error
	Close() error
}

// serviceBusClient implements the ServiceBusClient interface
type serviceBusClient struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
}

// NewServiceBusClient creates a new Azure Service Bus client
func NewServiceBusClient(cfg config.AzureConfig, source string) (ServiceBusClient, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &serviceBusClient{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
		source:    source,
	}, nil
}

// SendMessage sends a JSON message to the queue
func (s *serviceBusClient) SendMessage(ctx context.Context, subject string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	contentType := "application/json"
	msg := &azservicebus.Message{
		Body:        data,
		Subject:     &subject,
		ContentType: &contentType,
		ApplicationProperties: map[string]interface{}{
			"source": s.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return s.sender.SendMessage(ctx, msg, nil)
}

// Close closes the sender and the client
func (s *serviceBusClient) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(context.Background())
	}
	return nil
}

// OrderStatusSubject is the message subject for order status changes
const OrderStatusSubject = "order.status_changed"

// OrderStatusMessage announces that an order moved to a new status
type OrderStatusMessage struct {
	OrderID       uint      `json:"order_id"`
	AllegroDealID int64     `json:"allegro_deal_id"`
	AuctionID     uint      `json:"auction_id"`
	BuyerID       uint      `json:"buyer_id"`
	Status        string    `json:"status"`
	ChangedAt     time.Time `json:"changed_at"`
}

// StatusPublisher announces order status changes on the bus
type StatusPublisher struct {
	client ServiceBusClient
	now    func() time.Time
}

// NewStatusPublisher wraps a Service Bus client
func NewStatusPublisher(client ServiceBusClient) *StatusPublisher {
	return &StatusPublisher{client: client, now: time.Now}
}

// PublishOrderStatus sends the order's current status
func (p *StatusPublisher) PublishOrderStatus(ctx context.Context, order *models.Order) error {
	msg := OrderStatusMessage{
		OrderID:       order.ID,
		AllegroDealID: order.AllegroDealID,
		AuctionID:     order.AuctionID,
		BuyerID:       order.BuyerID,
		Status:        order.OrderStatus.String(),
		ChangedAt:     p.now().UTC(),
	}
	if err := p.client.SendMessage(ctx, OrderStatusSubject, msg); err != nil {
		return errors.Wrapf(err, "publishing status of order %d", order.ID)
	}

	log.Debug().Uint("order_id", order.ID).Str("status", msg.Status).Msg("order status published")
	return nil
}

// Close closes the underlying client
func (p *StatusPublisher) Close() error {
	return p.client.Close()
}

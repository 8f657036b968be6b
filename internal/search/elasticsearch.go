package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OrderIndexer mirrors orders into Elasticsearch for reporting
type OrderIndexer struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewOrderIndexer creates a new Elasticsearch order indexer
func NewOrderIndexer(cfg config.ElasticConfig) (*OrderIndexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &OrderIndexer{client: client, config: cfg}, nil
}

// orderDocument builds the indexed representation; Auction and Buyer should be loaded
func orderDocument(order *models.Order) map[string]interface{} {
	doc := map[string]interface{}{
		"id":                 order.ID,
		"allegro_deal_id":    order.AllegroDealID,
		"order_date":         order.OrderDate,
		"quantity":           order.Quantity,
		"status":             order.OrderStatus.String(),
		"auction_id":         order.AuctionID,
		"allegro_auction_id": order.Auction.AllegroAuctionID,
		"auction_title":      order.Auction.Title,
		"seller_id":          order.Auction.UserID,
		"price_per_item":     order.Auction.PricePerItem,
		"total":              order.Auction.PricePerItem * float64(order.Quantity),
		"buyer_id":           order.BuyerID,
		"buyer_login":        order.Buyer.UserLogin,
		"virtual_item":       order.Auction.IsVirtualItem,
	}
	if order.AllegroRefundID != nil {
		doc["allegro_refund_id"] = *order.AllegroRefundID
	}

	var paid float64
	for _, tr := range order.Transactions {
		if tr.TransactionStatus == models.TransactionStatusFinished {
			paid += tr.Amount
		}
	}
	doc["paid_amount"] = paid
	return doc
}

// IndexOrder upserts the order document keyed by its deal id
func (i *OrderIndexer) IndexOrder(ctx context.Context, order *models.Order) error {
	dealID := strconv.FormatInt(order.AllegroDealID, 10)

	body, err := json.Marshal(orderDocument(order))
	if err != nil {
		return errors.Wrap(err, "failed to marshal order document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(i.config, i.config.Index),
		DocumentID: dealID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Debug().Str("deal_id", dealID).Msg("order indexed")
	return nil
}

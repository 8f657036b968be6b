package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/models"

	"github.com/stretchr/testify/require"
)

func testOrder() *models.Order {
	refund := int64(77)
	return &models.Order{
		ID:              5,
		AllegroDealID:   9001,
		Quantity:        2,
		OrderDate:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		OrderStatus:     models.OrderStatusPaid,
		AllegroRefundID: &refund,
		Auction:         models.Auction{AllegroAuctionID: 42, Title: "Game key", PricePerItem: 10},
		Buyer:           models.Buyer{UserLogin: "buyer1"},
		Transactions: []models.Transaction{
			{Amount: 20, TransactionStatus: models.TransactionStatusFinished},
			{Amount: 20, TransactionStatus: models.TransactionStatusCanceled},
		},
	}
}

func TestOrderDocument(t *testing.T) {
	doc := orderDocument(testOrder())

	require.Equal(t, int64(9001), doc["allegro_deal_id"])
	require.Equal(t, "paid", doc["status"])
	require.Equal(t, 20.0, doc["total"])
	require.Equal(t, 20.0, doc["paid_amount"])
	require.Equal(t, int64(77), doc["allegro_refund_id"])
}

func TestIndexOrder(t *testing.T) {
	var gotPath string
	var gotDoc map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	indexer, err := NewOrderIndexer(config.ElasticConfig{URL: srv.URL, Prefix: "test", Index: "orders"})
	require.NoError(t, err)

	require.NoError(t, indexer.IndexOrder(context.Background(), testOrder()))
	require.Equal(t, "/test-orders/_doc/9001", gotPath)
	require.Equal(t, "buyer1", gotDoc["buyer_login"])
}

func TestIndexOrderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if r.Method == http.MethodGet && r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	}))
	defer srv.Close()

	indexer, err := NewOrderIndexer(config.ElasticConfig{URL: srv.URL, Index: "orders"})
	require.NoError(t, err)

	err = indexer.IndexOrder(context.Background(), testOrder())
	require.ErrorContains(t, err, "mapper_parsing_exception")
}

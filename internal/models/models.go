package models

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// User is a seller whose marketplace account is automated
type User struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Email               string    `gorm:"not null" json:"email"`
	AllegroUserName     string    `gorm:"not null" json:"allegro_user_name"`
	AllegroHashedPass   string    `gorm:"not null" json:"-"`
	AllegroKey          string    `gorm:"not null" json:"-"`
	AllegroJournalStart int64     `gorm:"not null;default:0" json:"allegro_journal_start"`
	Auctions            []Auction `gorm:"foreignKey:UserID" json:"-"`
}

// Auction is a listing owned by a seller
type Auction struct {
	ID                       uint                 `gorm:"primaryKey" json:"id"`
	CreatedAt                time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
	UserID                   uint                 `gorm:"not null;index" json:"user_id"`
	AllegroAuctionID         int64                `gorm:"not null;uniqueIndex" json:"allegro_auction_id"`
	Title                    string               `json:"title"`
	PricePerItem             float64              `json:"price_per_item"`
	Fee                      float64              `json:"fee"`
	OpenCost                 float64              `json:"open_cost"`
	EndDate                  time.Time            `json:"end_date"`
	HasEnded                 bool                 `gorm:"not null;default:false" json:"has_ended"`
	IsMonitored              bool                 `gorm:"not null;default:false;index" json:"is_monitored"`
	IsVirtualItem            bool                 `gorm:"not null;default:false" json:"is_virtual_item"`
	AutomaticFeedbackEnabled bool                 `gorm:"not null;default:false" json:"automatic_feedback_enabled"`
	AutomaticRefundsEnabled  bool                 `gorm:"not null;default:false" json:"automatic_refunds_enabled"`
	User                     User                 `gorm:"foreignKey:UserID" json:"-"`
	VirtualItemSettings      *VirtualItemSettings `gorm:"foreignKey:AuctionID" json:"-"`
	Orders                   []Order              `gorm:"foreignKey:AuctionID" json:"-"`
}

// Buyer is a marketplace account that bought from one of the sellers
type Buyer struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	AllegroUserID int64     `gorm:"not null;uniqueIndex" json:"allegro_user_id"`
	UserLogin     string    `json:"user_login"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	PostCode      string    `json:"post_code"`
	Company       string    `json:"company"`
}

// Order is a deal between a seller and a buyer on one auction
type Order struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	AuctionID       uint             `gorm:"not null;index" json:"auction_id"`
	BuyerID         uint             `gorm:"not null;index" json:"buyer_id"`
	AllegroDealID   int64            `gorm:"not null;uniqueIndex" json:"allegro_deal_id"`
	Quantity        int              `gorm:"not null" json:"quantity"`
	OrderDate       time.Time        `gorm:"not null;index" json:"order_date"`
	OrderStatus     OrderStatus      `gorm:"not null;default:0;index" json:"order_status"`
	AllegroRefundID *int64           `json:"allegro_refund_id,omitempty"`
	Auction         Auction          `gorm:"foreignKey:AuctionID" json:"-"`
	Buyer           Buyer            `gorm:"foreignKey:BuyerID" json:"-"`
	ShippingAddress *ShippingAddress `gorm:"foreignKey:OrderID" json:"shipping_address,omitempty"`
	Transactions    []Transaction    `gorm:"foreignKey:OrderID" json:"transactions,omitempty"`
	Events          []Event          `gorm:"foreignKey:OrderID" json:"-"`
	GameCodes       []GameCode       `gorm:"foreignKey:OrderID" json:"-"`
}

// ShippingAddress is the delivery address captured from a post-purchase form
type ShippingAddress struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	OrderID         uint   `gorm:"not null;uniqueIndex" json:"order_id"`
	FullName        string `json:"full_name"`
	Company         string `json:"company"`
	Address         string `json:"address"`
	PostCode        string `json:"post_code"`
	City            string `json:"city"`
	Phone           string `json:"phone"`
	MessageToSeller string `json:"message_to_seller"`
}

// Transaction is a payment attempt for an order
type Transaction struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	OrderID              uint              `gorm:"not null;index" json:"order_id"`
	AllegroTransactionID int64             `gorm:"not null;uniqueIndex" json:"allegro_transaction_id"`
	Amount               float64           `json:"amount"`
	TransactionStatus    TransactionStatus `gorm:"not null;default:0" json:"transaction_status"`
}

// Event is the audit record of one journal entry applied to an order
type Event struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	OrderID        uint      `gorm:"not null;index" json:"order_id"`
	AllegroEventID int64     `gorm:"not null;uniqueIndex" json:"allegro_event_id"`
	EventType      EventType `gorm:"not null" json:"event_type"`
	EventTime      time.Time `gorm:"not null" json:"event_time"`
}

// GivenFeedback records positive feedback already issued for a buyer on an auction
type GivenFeedback struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	AuctionID         uint      `gorm:"not null;uniqueIndex:idx_given_feedback_auction_buyer" json:"auction_id"`
	BuyerID           uint      `gorm:"not null;uniqueIndex:idx_given_feedback_auction_buyer" json:"buyer_id"`
	AllegroFeedbackID int64     `json:"allegro_feedback_id"`
}

// VirtualItemSettings configures code delivery for a virtual-item auction
type VirtualItemSettings struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	AuctionID       uint       `gorm:"not null;uniqueIndex" json:"auction_id"`
	ItemsConverter  int        `gorm:"not null;default:1" json:"items_converter"`
	MessageSubject  string     `json:"message_subject"`
	MessageTemplate string     `gorm:"type:text" json:"message_template"`
	ReplyTo         string     `json:"reply_to"`
	DisplayName     string     `json:"display_name"`
	CodeSeparator   string     `json:"code_separator"`
	GameCodes       []GameCode `gorm:"foreignKey:VirtualItemSettingsID" json:"-"`
}

// GameCode is a deliverable code, free while OrderID is nil
type GameCode struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	VirtualItemSettingsID uint      `gorm:"not null;index" json:"virtual_item_settings_id"`
	Code                  string    `gorm:"not null" json:"code"`
	AddDate               time.Time `gorm:"not null" json:"add_date"`
	OrderID               *uint     `gorm:"index" json:"order_id,omitempty"`
}

// ProcessorJob is the persisted schedule state of a periodic processor
type ProcessorJob struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"not null;uniqueIndex" json:"name"`
	State     JobState   `gorm:"not null" json:"state"`
	Owner     string     `json:"owner"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetupModels runs migrations for every persisted model
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Auction{},
		&Buyer{},
		&Order{},
		&ShippingAddress{},
		&Transaction{},
		&Event{},
		&GivenFeedback{},
		&VirtualItemSettings{},
		&GameCode{},
		&ProcessorJob{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// Order is a buyer's checkout. It reaches completed only through a verified
// checkout webhook.
type Order struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	BuyerID            string         `json:"buyer_id"`
	PayerEmail         string         `json:"payer_email"`
	Mode               Mode           `gorm:"type:text" json:"mode"`
	Currency           string         `json:"currency"`
	TotalAmount        int64          `json:"total_amount"`
	Status             OrderStatus    `gorm:"type:text" json:"status"`
	LineItems          datatypes.JSON `gorm:"type:jsonb" json:"line_items"`
	ExternalCustomerID *string        `json:"external_customer_id,omitempty"`
	ExternalSessionID  *string        `json:"external_session_id,omitempty"`
	ExternalPaymentID  *string        `json:"external_payment_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
}

func (Order) TableName() string { return "orders" }

// Items decodes the line item snapshot.
func (o Order) Items() ([]LineItem, error) {
	if len(o.LineItems) == 0 {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal(o.LineItems, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (o Order) SessionID() string {
	if o.ExternalSessionID == nil {
		return ""
	}
	return *o.ExternalSessionID
}

// LineItem is the snapshot stored with an order.
type LineItem struct {
	ProductRef  string `json:"product_ref"`
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
	Currency    string `json:"currency"`
	Entitlement string `json:"entitlement,omitempty"`
	Interval    string `json:"interval,omitempty"`
}

type PayerProfile struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Email              string       `json:"email"`
	Provider           string       `json:"provider"`
	ExternalCustomerID string       `json:"external_customer_id"`
	CreatedAt          time.Time    `json:"created_at"`
}

func (PayerProfile) TableName() string { return "payer_profiles" }

type BuyerEntitlement struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BuyerID     string       `json:"buyer_id"`
	Entitlement string       `json:"entitlement"`
	OrderID     snowflake.ID `json:"order_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (BuyerEntitlement) TableName() string { return "buyer_entitlements" }

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle states. closed is terminal.
const (
	OrderStatusPending   = "pending"
	OrderStatusProcessed = "processed"
	OrderStatusClosed    = "closed"
)

type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	TableID        uint            `gorm:"not null;index" json:"table_id"`
	AreaID         uint            `gorm:"not null;index" json:"area_id"`
	SessionID      string          `gorm:"type:varchar(36);not null" json:"session_id"`
	ActiveTableID  *uint           `gorm:"uniqueIndex:idx_orders_active_table" json:"-"`
	Status         string          `gorm:"type:varchar(20);not null;default:'pending'" json:"order_status"`
	CustomerTokens TokenSet        `gorm:"type:text" json:"customer_tokens"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	ServiceCharge  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"service_charge"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Version        int64           `gorm:"not null" json:"version"`
	ItemsRevision  int64           `gorm:"not null" json:"items_revision"`
	PlacedRevision int64           `gorm:"not null" json:"-"`
	PlacedAt       *time.Time      `json:"placed_at,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
}

// IsActive reports whether the order still occupies the table's active slot.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessed
}

// ContributionOf returns the lines owned by one customer device.
func (o *Order) ContributionOf(token string) []OrderItem {
	mine := make([]OrderItem, 0)
	for _, item := range o.Items {
		if item.CustomerToken == token {
			mine = append(mine, item)
		}
	}
	return mine
}

// FindLine returns the line for product and token, if any.
func (o *Order) FindLine(productID, token string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ProductID == productID && item.CustomerToken == token {
			return item, true
		}
	}
	return OrderItem{}, false
}

// TokenSet is the de-duplicated, sorted set of customer tokens stored as JSON.
type TokenSet []string

// NewTokenSet builds a sorted set from the tokens of the given lines.
func NewTokenSet(items []OrderItem) TokenSet {
	seen := make(map[string]struct{}, len(items))
	set := make(TokenSet, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.CustomerToken]; ok {
			continue
		}
		seen[item.CustomerToken] = struct{}{}
		set = append(set, item.CustomerToken)
	}
	sort.Strings(set)
	return set
}

func (s TokenSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *TokenSet) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = TokenSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TokenSet", value)
	}
	if len(raw) == 0 {
		*s = TokenSet{}
		return nil
	}
	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return err
	}
	*s = tokens
	return nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is one line of a shared table order. A line is owned by the
// customer device that submitted it; Processed is owned by staff.
type OrderItem struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       uint            `gorm:"not null;uniqueIndex:idx_order_line" json:"order_id"`
	ProductID     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_line" json:"product_id"`
	CustomerToken string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_line" json:"customer_token"`
	DisplayName   string          `gorm:"type:varchar(255);not null" json:"display_name"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	Processed     bool            `gorm:"not null;default:false" json:"processed"`
	Position      int             `gorm:"not null" json:"position"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/innerchild2401/qr-menu-sub004/models"
)

// Notifier receives committed state for downstream readers such as the
// staff websocket feed. Calls happen after commit only.
type Notifier interface {
	NotifyOrder(order *models.Order)
	NotifyTable(table *models.Table)
}

type nopNotifier struct{}

func (nopNotifier) NotifyOrder(*models.Order) {}
func (nopNotifier) NotifyTable(*models.Table) {}

// RestaurantDirectory resolves the display name shown on stale-QR errors.
type RestaurantDirectory interface {
	RestaurantName(ctx context.Context, areaID uint) string
}

// StaticRestaurant serves a single restaurant name for every area.
type StaticRestaurant string

func (s StaticRestaurant) RestaurantName(context.Context, uint) string {
	return string(s)
}

type Options struct {
	ServiceChargePercent decimal.Decimal
	Retry                RetryPolicy
	Notifier             Notifier
	Restaurant           RestaurantDirectory
}

func (o Options) withDefaults() Options {
	o.Retry = o.Retry.withDefaults()
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Restaurant == nil {
		o.Restaurant = StaticRestaurant("")
	}
	return o
}

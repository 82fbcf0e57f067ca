package services

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/innerchild2401/qr-menu-sub004/models"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// CartLine is one entry of a customer's complete desired cart.
type CartLine struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DisplayName string          `json:"display_name"`
}

func validateCart(cart []CartLine) error {
	for i, line := range cart {
		if strings.TrimSpace(line.ProductID) == "" {
			return errors.Wrapf(ErrInvalidInput, "item %d: product_id is required", i)
		}
		if len(line.ProductID) > 64 {
			return errors.Wrapf(ErrInvalidInput, "item %d: product_id is too long", i)
		}
		if utf8.RuneCountInString(line.DisplayName) > 255 {
			return errors.Wrapf(ErrInvalidInput, "item %d: display_name is too long", i)
		}
		if line.Quantity < 0 {
			return errors.Wrapf(ErrInvalidInput, "item %d: quantity cannot be negative", i)
		}
		if line.UnitPrice.IsNegative() {
			return errors.Wrapf(ErrInvalidInput, "item %d: unit_price cannot be negative", i)
		}
	}
	return nil
}

// MergeCart replaces the lines owned by token with cart and leaves every
// other customer's lines untouched. Quantities of repeated products are
// summed and zero quantities dropped. A line keeps its processed flag only
// when the same product was already there with the same quantity.
func MergeCart(existing []models.OrderItem, token string, cart []CartLine) []models.OrderItem {
	prior := make(map[string]models.OrderItem)
	merged := make([]models.OrderItem, 0, len(existing)+len(cart))
	maxPos := 0
	for _, item := range existing {
		if item.Position > maxPos {
			maxPos = item.Position
		}
		if item.CustomerToken == token {
			prior[item.ProductID] = item
			continue
		}
		merged = append(merged, item)
	}

	for _, line := range normalizeCart(cart) {
		item := models.OrderItem{
			ProductID:     line.ProductID,
			CustomerToken: token,
			DisplayName:   line.DisplayName,
			UnitPrice:     line.UnitPrice,
			Quantity:      line.Quantity,
		}
		if old, ok := prior[line.ProductID]; ok {
			item.ID = old.ID
			item.OrderID = old.OrderID
			item.Position = old.Position
			item.CreatedAt = old.CreatedAt
			item.Processed = old.Processed && old.Quantity == line.Quantity
		} else {
			maxPos++
			item.Position = maxPos
		}
		merged = append(merged, item)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Position < merged[j].Position
	})
	return merged
}

// normalizeCart sums repeated products in order of first appearance and
// drops lines that end up with nothing to order.
func normalizeCart(cart []CartLine) []CartLine {
	index := make(map[string]int, len(cart))
	out := make([]CartLine, 0, len(cart))
	for _, line := range cart {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if i, ok := index[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			out[i].UnitPrice = line.UnitPrice
			if line.DisplayName != "" {
				out[i].DisplayName = line.DisplayName
			}
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}

	kept := out[:0]
	for _, line := range out {
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	return kept
}

func cartFromLines(items []models.OrderItem) []CartLine {
	cart := make([]CartLine, 0, len(items))
	for _, item := range items {
		cart = append(cart, CartLine{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			DisplayName: item.DisplayName,
		})
	}
	return cart
}

// CartMergeEngine folds one customer's cart into the table's shared order.
type CartMergeEngine struct {
	db     *gorm.DB
	store  *OrderStore
	tables *TableRegistry
	opts   Options
}

func NewCartMergeEngine(db *gorm.DB, store *OrderStore, tables *TableRegistry, opts Options) *CartMergeEngine {
	return &CartMergeEngine{db: db, store: store, tables: tables, opts: opts.withDefaults()}
}

// Join checks that a scanned QR session may still order at the table and
// returns the table.
func (e *CartMergeEngine) Join(ctx context.Context, tableID uint, sessionID string) (*models.Table, error) {
	var table *models.Table
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		table, err = e.tables.load(tx, tableID)
		if err != nil {
			return err
		}
		return checkCustomerSession(ctx, tx, e.store, e.opts, table, sessionID)
	})
	if err != nil {
		return nil, translateStorageError(err)
	}
	return table, nil
}

// SubmitCart replaces the caller's contribution with cart and returns the
// whole order. An empty cart on a table without an order writes nothing.
func (e *CartMergeEngine) SubmitCart(ctx context.Context, tableID uint, sessionID, token string, cart []CartLine) (*models.Order, error) {
	if err := validateCart(cart); err != nil {
		return nil, err
	}
	return e.fold(ctx, tableID, sessionID, token, func([]models.OrderItem) []CartLine {
		return cart
	})
}

// RemoveLine drops one product from the caller's contribution. Removing a
// product the caller never ordered returns the order unchanged.
func (e *CartMergeEngine) RemoveLine(ctx context.Context, tableID uint, sessionID, token, productID string) (*models.Order, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "product_id is required")
	}
	return e.fold(ctx, tableID, sessionID, token, func(mine []models.OrderItem) []CartLine {
		cart := make([]CartLine, 0, len(mine))
		for _, line := range cartFromLines(mine) {
			if line.ProductID != productID {
				cart = append(cart, line)
			}
		}
		return cart
	})
}

func (e *CartMergeEngine) fold(ctx context.Context, tableID uint, sessionID, token string, desired func(mine []models.OrderItem) []CartLine) (*models.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.Wrap(ErrInvalidInput, "customer token is required")
	}

	var result *models.Order
	changed := false
	err := runInTx(ctx, e.db, e.opts.Retry, func(tx *gorm.DB) error {
		result, changed = nil, false

		table, err := e.tables.load(tx, tableID)
		if err != nil {
			return err
		}
		if err := checkCustomerSession(ctx, tx, e.store, e.opts, table, sessionID); err != nil {
			return err
		}

		order, err := e.store.activeOrder(tx, tableID)
		if err != nil {
			return err
		}
		if order == nil {
			order = newOrder(table)
			reprice(order, e.opts.ServiceChargePercent)
		}
		result = order

		before := cloneLines(order.Items)
		merged := MergeCart(before, token, desired(order.ContributionOf(token)))
		if linesEqual(before, merged) {
			return nil
		}

		order.Items = merged
		order.ItemsRevision++
		reprice(order, e.opts.ServiceChargePercent)
		if err := e.store.save(tx, order, before); err != nil {
			return err
		}
		if err := e.tables.confirmSession(tx, table); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		utils.InfoLogger.WithFields(logrus.Fields{
			"table_id": tableID,
			"order_id": result.ID,
			"version":  result.Version,
			"lines":    len(result.Items),
		}).Info("Cart merged")
		e.opts.Notifier.NotifyOrder(result)
	}
	return result, nil
}

// checkCustomerSession rejects tables that are not taking orders and QR
// sessions that no longer match the table.
func checkCustomerSession(ctx context.Context, tx *gorm.DB, store *OrderStore, opts Options, table *models.Table, sessionID string) error {
	if !table.AcceptsOrders() {
		return errors.Wrapf(ErrTableUnavailable, "table %d is %s", table.ID, table.Status)
	}

	closed := &TableClosedError{
		RestaurantName: opts.Restaurant.RestaurantName(ctx, table.AreaID),
		TableLabel:     table.Label,
	}
	if sessionID != table.SessionID {
		return closed
	}
	latest, err := store.latestOrder(tx, table.ID)
	if err != nil {
		return err
	}
	if latest != nil && latest.Status == models.OrderStatusClosed && latest.SessionID == table.SessionID {
		return closed
	}
	return nil
}

package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/innerchild2401/qr-menu-sub004/models"
)

var hundred = decimal.NewFromInt(100)

// OrderStore persists table orders. Every write is a compare-and-swap on
// Order.Version and must run inside the caller's transaction.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// ActiveOrder returns the pending or processed order of a table, or nil.
func (s *OrderStore) ActiveOrder(ctx context.Context, tableID uint) (*models.Order, error) {
	return s.activeOrder(s.db.WithContext(ctx), tableID)
}

// LatestOrder returns the most recently opened order of a table with its
// lines, or nil.
func (s *OrderStore) LatestOrder(ctx context.Context, tableID uint) (*models.Order, error) {
	order, err := s.latestOrder(s.db.WithContext(ctx), tableID)
	if err != nil || order == nil {
		return order, err
	}
	err = s.db.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("position ASC, id ASC").
		Find(&order.Items).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load lines of order %d", order.ID)
	}
	return order, nil
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func (s *OrderStore) activeOrder(tx *gorm.DB, tableID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items", preloadItems).
		Where("active_table_id = ?", tableID).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load active order for table %d", tableID)
	}
	return &order, nil
}

// latestOrder loads the newest order header of a table without its lines.
func (s *OrderStore) latestOrder(tx *gorm.DB, tableID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Where("table_id = ?", tableID).
		Order("id DESC").
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load latest order for table %d", tableID)
	}
	return &order, nil
}

// newOrder synthesizes an unsaved pending order for a table session.
func newOrder(table *models.Table) *models.Order {
	return &models.Order{
		TableID:        table.ID,
		AreaID:         table.AreaID,
		SessionID:      table.SessionID,
		Status:         models.OrderStatusPending,
		CustomerTokens: models.TokenSet{},
		Items:          []models.OrderItem{},
	}
}

// reprice recomputes every derived field of the order from its lines.
func reprice(order *models.Order, serviceChargePercent decimal.Decimal) {
	subtotal := decimal.Zero
	for _, item := range order.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	order.Subtotal = subtotal.Round(2)
	order.ServiceCharge = subtotal.Mul(serviceChargePercent).Div(hundred).Round(2)
	order.Total = order.Subtotal.Add(order.ServiceCharge)
	order.CustomerTokens = models.NewTokenSet(order.Items)
}

// save writes order and reconciles its lines against before, the lines that
// were loaded in the same transaction. A new order is inserted behind the
// active_table_id unique index; an existing one is updated only if its
// version is unchanged since it was read.
func (s *OrderStore) save(tx *gorm.DB, order *models.Order, before []models.OrderItem) error {
	now := time.Now()
	if order.ID == 0 {
		order.Version = 1
		if order.IsActive() {
			tableID := order.TableID
			order.ActiveTableID = &tableID
		}
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}
		return s.syncLines(tx, order, nil, now)
	}

	var active interface{}
	if order.IsActive() {
		active = order.TableID
	}
	expected := order.Version
	result := tx.Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, expected).
		Updates(map[string]interface{}{
			"status":          order.Status,
			"customer_tokens": order.CustomerTokens,
			"subtotal":        order.Subtotal,
			"service_charge":  order.ServiceCharge,
			"total":           order.Total,
			"version":         expected + 1,
			"items_revision":  order.ItemsRevision,
			"placed_revision": order.PlacedRevision,
			"placed_at":       order.PlacedAt,
			"processed_at":    order.ProcessedAt,
			"closed_at":       order.ClosedAt,
			"active_table_id": active,
			"updated_at":      now,
		})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update order %d", order.ID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrConflict, "order %d changed since version %d", order.ID, expected)
	}
	order.Version = expected + 1
	order.UpdatedAt = now
	if order.IsActive() {
		tableID := order.TableID
		order.ActiveTableID = &tableID
	} else {
		order.ActiveTableID = nil
	}
	return s.syncLines(tx, order, before, now)
}

type lineKey struct {
	productID string
	token     string
}

func keyOf(item models.OrderItem) lineKey {
	return lineKey{productID: item.ProductID, token: item.CustomerToken}
}

// syncLines applies the difference between before and order.Items, keyed by
// product and customer token.
func (s *OrderStore) syncLines(tx *gorm.DB, order *models.Order, before []models.OrderItem, now time.Time) error {
	prev := make(map[lineKey]models.OrderItem, len(before))
	for _, item := range before {
		prev[keyOf(item)] = item
	}

	kept := make(map[lineKey]struct{}, len(order.Items))
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		key := keyOf(*item)
		kept[key] = struct{}{}

		old, ok := prev[key]
		if !ok {
			item.ID = 0
			if err := tx.Create(item).Error; err != nil {
				return errors.Wrapf(err, "insert line %s for order %d", item.ProductID, order.ID)
			}
			continue
		}

		item.ID = old.ID
		item.CreatedAt = old.CreatedAt
		if sameLine(old, *item) {
			item.UpdatedAt = old.UpdatedAt
			continue
		}
		item.UpdatedAt = now
		err := tx.Model(&models.OrderItem{}).
			Where("id = ?", old.ID).
			Updates(map[string]interface{}{
				"display_name": item.DisplayName,
				"unit_price":   item.UnitPrice,
				"quantity":     item.Quantity,
				"processed":    item.Processed,
				"position":     item.Position,
				"updated_at":   now,
			}).Error
		if err != nil {
			return errors.Wrapf(err, "update line %d", old.ID)
		}
	}

	var removed []uint
	for key, item := range prev {
		if _, ok := kept[key]; !ok {
			removed = append(removed, item.ID)
		}
	}
	if len(removed) > 0 {
		if err := tx.Where("id IN ?", removed).Delete(&models.OrderItem{}).Error; err != nil {
			return errors.Wrapf(err, "delete lines of order %d", order.ID)
		}
	}
	return nil
}

func sameLine(a, b models.OrderItem) bool {
	return a.Quantity == b.Quantity &&
		a.Processed == b.Processed &&
		a.Position == b.Position &&
		a.DisplayName == b.DisplayName &&
		a.UnitPrice.Equal(b.UnitPrice)
}

// linesEqual reports whether two line sets hold the same lines.
func linesEqual(a, b []models.OrderItem) bool {
	if len(a) != len(b) {
		return false
	}
	index := make(map[lineKey]models.OrderItem, len(a))
	for _, item := range a {
		index[keyOf(item)] = item
	}
	for _, item := range b {
		other, ok := index[keyOf(item)]
		if !ok || !sameLine(other, item) {
			return false
		}
	}
	return true
}

func cloneLines(items []models.OrderItem) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out
}

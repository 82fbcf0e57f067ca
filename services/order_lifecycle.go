package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/innerchild2401/qr-menu-sub004/models"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// OrderLifecycle moves a table's order through pending, processed and
// closed, and couples those moves to the table status at placement and
// close.
type OrderLifecycle struct {
	db     *gorm.DB
	store  *OrderStore
	tables *TableRegistry
	opts   Options
}

func NewOrderLifecycle(db *gorm.DB, store *OrderStore, tables *TableRegistry, opts Options) *OrderLifecycle {
	return &OrderLifecycle{db: db, store: store, tables: tables, opts: opts.withDefaults()}
}

// ActiveOrder returns the table's open order, or nil when it has none.
func (l *OrderLifecycle) ActiveOrder(ctx context.Context, tableID uint) (*models.Order, error) {
	if _, err := l.tables.GetTable(ctx, tableID); err != nil {
		return nil, err
	}
	return l.store.ActiveOrder(ctx, tableID)
}

// LatestOrder returns the table's newest order, closed or not.
func (l *OrderLifecycle) LatestOrder(ctx context.Context, tableID uint) (*models.Order, error) {
	if _, err := l.tables.GetTable(ctx, tableID); err != nil {
		return nil, err
	}
	return l.store.LatestOrder(ctx, tableID)
}

// Place marks the current cart as handed to the kitchen and occupies the
// table. Calling it again only re-stamps placed_at when the lines changed.
func (l *OrderLifecycle) Place(ctx context.Context, tableID uint, sessionID string) (*models.Order, error) {
	var (
		order        *models.Order
		table        *models.Table
		orderChanged bool
		tableChanged bool
	)
	err := runInTx(ctx, l.db, l.opts.Retry, func(tx *gorm.DB) error {
		orderChanged, tableChanged = false, false

		var err error
		table, err = l.tables.load(tx, tableID)
		if err != nil {
			return err
		}
		if err := checkCustomerSession(ctx, tx, l.store, l.opts, table, sessionID); err != nil {
			return err
		}

		order, err = l.store.activeOrder(tx, tableID)
		if err != nil {
			return err
		}
		if order == nil || len(order.Items) == 0 {
			return errors.Wrapf(ErrEmptyOrder, "table %d", tableID)
		}
		if order.Status != models.OrderStatusPending {
			return errors.Wrapf(ErrInvalidTransition, "order %d is %s", order.ID, order.Status)
		}

		if order.PlacedAt == nil || order.PlacedRevision != order.ItemsRevision {
			now := time.Now()
			order.PlacedAt = &now
			order.PlacedRevision = order.ItemsRevision
			if err := l.store.save(tx, order, order.Items); err != nil {
				return err
			}
			orderChanged = true
		}

		status := table.Status
		if err := l.tables.occupy(tx, table); err != nil {
			return err
		}
		tableChanged = status != table.Status
		if orderChanged && !tableChanged {
			return l.tables.confirmSession(tx, table)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if orderChanged {
		utils.InfoLogger.WithFields(logrus.Fields{
			"table_id": tableID,
			"order_id": order.ID,
			"revision": order.PlacedRevision,
		}).Info("Order placed")
		l.opts.Notifier.NotifyOrder(order)
	}
	if tableChanged {
		l.opts.Notifier.NotifyTable(table)
	}
	return order, nil
}

// Process moves a pending order to processed and marks every line handled.
func (l *OrderLifecycle) Process(ctx context.Context, tableID uint, actor string) (*models.Order, error) {
	var order *models.Order
	err := runInTx(ctx, l.db, l.opts.Retry, func(tx *gorm.DB) error {
		var err error
		order, err = l.requireActive(tx, tableID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return errors.Wrapf(ErrInvalidTransition, "order %d is %s", order.ID, order.Status)
		}

		before := cloneLines(order.Items)
		now := time.Now()
		order.Status = models.OrderStatusProcessed
		order.ProcessedAt = &now
		for i := range order.Items {
			order.Items[i].Processed = true
		}
		return l.store.save(tx, order, before)
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id": tableID,
		"order_id": order.ID,
		"actor":    actor,
	}).Info("Order processed")
	l.opts.Notifier.NotifyOrder(order)
	return order, nil
}

// Close ends the table's order, frees the table and rotates its session so
// no previously scanned QR code can add to it again.
func (l *OrderLifecycle) Close(ctx context.Context, tableID uint, actor string) (*models.Table, *models.Order, error) {
	var (
		order *models.Order
		table *models.Table
	)
	err := runInTx(ctx, l.db, l.opts.Retry, func(tx *gorm.DB) error {
		var err error
		table, err = l.tables.load(tx, tableID)
		if err != nil {
			return err
		}
		order, err = l.requireActive(tx, tableID)
		if err != nil {
			return err
		}

		now := time.Now()
		order.Status = models.OrderStatusClosed
		order.ClosedAt = &now
		if err := l.store.save(tx, order, order.Items); err != nil {
			return err
		}
		return l.tables.release(tx, table, actor)
	})
	if err != nil {
		return nil, nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id": tableID,
		"order_id": order.ID,
		"total":    order.Total.StringFixed(2),
		"actor":    actor,
	}).Info("Order closed")
	l.opts.Notifier.NotifyOrder(order)
	l.opts.Notifier.NotifyTable(table)
	return table, order, nil
}

// MarkLineProcessed sets the processed flag of one customer's line.
func (l *OrderLifecycle) MarkLineProcessed(ctx context.Context, tableID uint, productID, token string, processed bool, actor string) (*models.Order, error) {
	productID, token = strings.TrimSpace(productID), strings.TrimSpace(token)
	if productID == "" || token == "" {
		return nil, errors.Wrap(ErrInvalidInput, "product_id and customer_token are required")
	}

	var order *models.Order
	changed := false
	err := runInTx(ctx, l.db, l.opts.Retry, func(tx *gorm.DB) error {
		changed = false
		var err error
		order, err = l.requireActive(tx, tableID)
		if err != nil {
			return err
		}

		before := cloneLines(order.Items)
		found := false
		for i := range order.Items {
			item := &order.Items[i]
			if item.ProductID != productID || item.CustomerToken != token {
				continue
			}
			found = true
			if item.Processed != processed {
				item.Processed = processed
				changed = true
			}
		}
		if !found {
			return errors.Wrapf(ErrNotFound, "line %s of order %d", productID, order.ID)
		}
		if !changed {
			return nil
		}
		return l.store.save(tx, order, before)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		utils.InfoLogger.WithFields(logrus.Fields{
			"table_id":   tableID,
			"order_id":   order.ID,
			"product_id": productID,
			"processed":  processed,
			"actor":      actor,
		}).Info("Order line updated")
		l.opts.Notifier.NotifyOrder(order)
	}
	return order, nil
}

// RemoveStaffLine removes the unprocessed lines of a product, limited to
// one customer when token is set. Lines already handled by the kitchen
// cannot be removed this way.
func (l *OrderLifecycle) RemoveStaffLine(ctx context.Context, tableID uint, productID, token, actor string) (*models.Order, error) {
	productID, token = strings.TrimSpace(productID), strings.TrimSpace(token)
	if productID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "product_id is required")
	}

	var order *models.Order
	changed := false
	err := runInTx(ctx, l.db, l.opts.Retry, func(tx *gorm.DB) error {
		changed = false
		var err error
		order, err = l.requireActive(tx, tableID)
		if err != nil {
			return err
		}

		before := cloneLines(order.Items)
		kept := make([]models.OrderItem, 0, len(order.Items))
		matched, removed := 0, 0
		for _, item := range order.Items {
			if item.ProductID == productID && (token == "" || item.CustomerToken == token) {
				matched++
				if !item.Processed {
					removed++
					continue
				}
			}
			kept = append(kept, item)
		}
		if matched == 0 {
			return nil
		}
		if removed == 0 {
			return errors.Wrapf(ErrInvalidTransition, "line %s of order %d is already processed", productID, order.ID)
		}

		order.Items = kept
		order.ItemsRevision++
		reprice(order, l.opts.ServiceChargePercent)
		changed = true
		return l.store.save(tx, order, before)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		utils.InfoLogger.WithFields(logrus.Fields{
			"table_id":   tableID,
			"order_id":   order.ID,
			"product_id": productID,
			"actor":      actor,
		}).Info("Order line removed by staff")
		l.opts.Notifier.NotifyOrder(order)
	}
	return order, nil
}

// requireActive loads the table's open order. A table whose last order is
// closed yields ErrInvalidTransition; a table that never had one yields
// ErrNotFound.
func (l *OrderLifecycle) requireActive(tx *gorm.DB, tableID uint) (*models.Order, error) {
	if _, err := l.tables.load(tx, tableID); err != nil {
		return nil, err
	}
	order, err := l.store.activeOrder(tx, tableID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	latest, err := l.store.latestOrder(tx, tableID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return nil, errors.Wrapf(ErrInvalidTransition, "order %d is already closed", latest.ID)
	}
	return nil, errors.Wrapf(ErrNotFound, "no order for table %d", tableID)
}

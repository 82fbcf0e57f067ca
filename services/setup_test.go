package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/innerchild2401/qr-menu-sub004/database"
	"github.com/innerchild2401/qr-menu-sub004/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	orders []models.Order
	tables []models.Table
}

func (n *recordingNotifier) NotifyOrder(order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, *order)
}

func (n *recordingNotifier) NotifyTable(table *models.Table) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables = append(n.tables, *table)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.orders), len(n.tables)
}

type testEnv struct {
	db       *gorm.DB
	store    *OrderStore
	tables   *TableRegistry
	carts    *CartMergeEngine
	orders   *OrderLifecycle
	notifier *recordingNotifier
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, ":memory:")
}

// setupWALTestEnv opens a file database with several connections so that
// transactions really overlap.
func setupWALTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.db")
	env := newTestEnv(t, path+"?_busy_timeout=5000&_journal_mode=WAL")
	t.Cleanup(func() {
		if sqlDB, err := env.db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return env
}

func newTestEnv(t *testing.T, dsn string) *testEnv {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	notifier := &recordingNotifier{}
	opts := Options{
		ServiceChargePercent: decimal.NewFromInt(10),
		Notifier:             notifier,
		Restaurant:           StaticRestaurant("Warung Test"),
		Retry: RetryPolicy{
			MaxAttempts: 5,
			Timeout:     10 * time.Second,
			BaseDelay:   time.Millisecond,
			MaxDelay:    20 * time.Millisecond,
		},
	}
	store := NewOrderStore(db)
	tables := NewTableRegistry(db, opts)
	return &testEnv{
		db:       db,
		store:    store,
		tables:   tables,
		carts:    NewCartMergeEngine(db, store, tables, opts),
		orders:   NewOrderLifecycle(db, store, tables, opts),
		notifier: notifier,
	}
}

func (e *testEnv) createTable(t *testing.T, label string) *models.Table {
	t.Helper()
	table, err := e.tables.CreateTable(context.Background(), 1, label, 4)
	require.NoError(t, err)
	return table
}

func burger(qty int) CartLine {
	return CartLine{ProductID: "burger", Quantity: qty, UnitPrice: decimal.RequireFromString("8.50"), DisplayName: "Burger"}
}

func salad(qty int) CartLine {
	return CartLine{ProductID: "salad", Quantity: qty, UnitPrice: decimal.RequireFromString("6.25"), DisplayName: "Salad"}
}

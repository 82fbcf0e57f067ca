package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/innerchild2401/qr-menu-sub004/models"
)

func TestMergeCartReplacesOnlyCallerLines(t *testing.T) {
	existing := []models.OrderItem{
		{ID: 1, ProductID: "burger", CustomerToken: "a", Quantity: 1, Processed: true, Position: 1},
		{ID: 2, ProductID: "salad", CustomerToken: "b", Quantity: 2, Processed: true, Position: 2},
		{ID: 3, ProductID: "fries", CustomerToken: "a", Quantity: 1, Position: 3},
	}

	merged := MergeCart(existing, "a", []CartLine{
		{ProductID: "burger", Quantity: 1},
		{ProductID: "cola", Quantity: 1},
		{ProductID: "cola", Quantity: 2},
		{ProductID: "fries", Quantity: 0},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "burger", merged[0].ProductID)
	assert.True(t, merged[0].Processed)
	assert.Equal(t, uint(1), merged[0].ID)

	assert.Equal(t, "salad", merged[1].ProductID)
	assert.Equal(t, "b", merged[1].CustomerToken)
	assert.True(t, merged[1].Processed)

	assert.Equal(t, "cola", merged[2].ProductID)
	assert.Equal(t, 3, merged[2].Quantity)
	assert.Equal(t, 4, merged[2].Position)
	assert.False(t, merged[2].Processed)
}

func TestMergeCartResetsProcessedOnQuantityChange(t *testing.T) {
	existing := []models.OrderItem{
		{ProductID: "burger", CustomerToken: "a", Quantity: 1, Processed: true, Position: 1},
	}
	merged := MergeCart(existing, "a", []CartLine{{ProductID: "burger", Quantity: 2}})
	require.Len(t, merged, 1)
	assert.False(t, merged[0].Processed)
	assert.Equal(t, 1, merged[0].Position)
}

func TestSubmitCartSharesOrderBetweenCustomers(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "12")

	_, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	require.NoError(t, err)
	order, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-b", []CartLine{salad(2)})
	require.NoError(t, err)

	require.Len(t, order.Items, 2)
	assert.Equal(t, models.TokenSet{"customer-a", "customer-b"}, order.CustomerTokens)
	assert.Equal(t, "21.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "2.10", order.ServiceCharge.StringFixed(2))
	assert.Equal(t, "23.10", order.Total.StringFixed(2))
	assert.Equal(t, models.OrderStatusPending, order.Status)

	mine := order.ContributionOf("customer-b")
	require.Len(t, mine, 1)
	assert.Equal(t, "salad", mine[0].ProductID)

	stored, err := env.store.ActiveOrder(ctx, table.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, order.ID, stored.ID)
	assert.Len(t, stored.Items, 2)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("23.10")))

	refreshed, err := env.tables.GetTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusAvailable, refreshed.Status)
}

func TestSubmitCartKeepsProcessedFlagUntilQuantityChanges(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "A3")

	_, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	require.NoError(t, err)
	_, err = env.orders.MarkLineProcessed(ctx, table.ID, "burger", "customer-a", true, "chef")
	require.NoError(t, err)

	order, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	require.NoError(t, err)
	line, ok := order.FindLine("burger", "customer-a")
	require.True(t, ok)
	assert.True(t, line.Processed)

	order, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(2)})
	require.NoError(t, err)
	line, ok = order.FindLine("burger", "customer-a")
	require.True(t, ok)
	assert.False(t, line.Processed)
	assert.Equal(t, 2, line.Quantity)
}

func TestSubmitCartConcurrentCustomersLoseNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "7")

	const customers = 8
	var wg sync.WaitGroup
	errs := make(chan error, customers)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, fmt.Sprintf("customer-%d", i), []CartLine{
				{ProductID: fmt.Sprintf("dish-%d", i), Quantity: i + 1, UnitPrice: decimal.NewFromInt(2)},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	order, err := env.store.ActiveOrder(ctx, table.ID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Len(t, order.Items, customers)
	assert.Len(t, order.CustomerTokens, customers)
	assert.Equal(t, "72.00", order.Subtotal.StringFixed(2))

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Where("table_id = ?", table.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStaleVersionWriteIsRejected(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "9")

	_, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	require.NoError(t, err)
	stale, err := env.store.ActiveOrder(ctx, table.ID)
	require.NoError(t, err)

	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-b", []CartLine{salad(1)})
	require.NoError(t, err)

	before := cloneLines(stale.Items)
	stale.Items = MergeCart(before, "customer-a", []CartLine{burger(3)})
	err = env.db.Transaction(func(tx *gorm.DB) error {
		return env.store.save(tx, stale, before)
	})
	assert.True(t, errors.Is(err, ErrConflict))

	current, err := env.store.ActiveOrder(ctx, table.ID)
	require.NoError(t, err)
	line, ok := current.FindLine("burger", "customer-a")
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
	assert.Len(t, current.Items, 2)
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "4")

	order, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1), salad(1)})
	require.NoError(t, err)
	version := order.Version

	unchanged, err := env.carts.RemoveLine(ctx, table.ID, table.SessionID, "customer-a", "pizza")
	require.NoError(t, err)
	assert.Equal(t, version, unchanged.Version)
	assert.Len(t, unchanged.Items, 2)

	unchanged, err = env.carts.RemoveLine(ctx, table.ID, table.SessionID, "customer-b", "burger")
	require.NoError(t, err)
	assert.Len(t, unchanged.Items, 2)

	order, err = env.carts.RemoveLine(ctx, table.ID, table.SessionID, "customer-a", "burger")
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "salad", order.Items[0].ProductID)
	assert.Equal(t, "6.25", order.Subtotal.StringFixed(2))
}

func TestEmptyCartWithoutOrderWritesNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "5")

	order, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(0)})
	require.NoError(t, err)
	assert.Zero(t, order.ID)
	assert.Empty(t, order.Items)
	assert.True(t, order.Total.IsZero())

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	orders, _ := env.notifier.counts()
	assert.Zero(t, orders)
}

func TestSubmitCartRejections(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "8")

	_, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(-1)})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "", []CartLine{burger(1)})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	long := burger(1)
	long.DisplayName = strings.Repeat("é", 256)
	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{long})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	long.DisplayName = strings.Repeat("é", 255)
	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{long})
	require.NoError(t, err)
	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", nil)
	require.NoError(t, err)

	_, err = env.carts.SubmitCart(ctx, 999, "whatever", "customer-a", []CartLine{burger(1)})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = env.carts.SubmitCart(ctx, table.ID, "old-session", "customer-a", []CartLine{burger(1)})
	var closed *TableClosedError
	require.True(t, errors.As(err, &closed))
	assert.Equal(t, "Warung Test", closed.RestaurantName)
	assert.Equal(t, "8", closed.TableLabel)

	_, err = env.tables.SetStatus(ctx, table.ID, models.TableStatusCleaning, "staff")
	require.NoError(t, err)
	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	assert.True(t, errors.Is(err, ErrTableUnavailable))
}

func isOrdersStatement(db *gorm.DB) bool {
	return db.Statement.Schema != nil && db.Statement.Schema.Table == "orders"
}

func TestSubmitCartRebasesAfterLosingRace(t *testing.T) {
	env := setupWALTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "15")

	_, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	require.NoError(t, err)

	var (
		mu           sync.Mutex
		orderWrites  int
		competingErr error
	)
	err = env.db.Callback().Update().Before("gorm:update").Register("test:competing_merge", func(db *gorm.DB) {
		if !isOrdersStatement(db) {
			return
		}
		mu.Lock()
		orderWrites++
		first := orderWrites == 1
		mu.Unlock()
		if first {
			// customer-b commits while customer-a's transaction sits between
			// its read and its write.
			_, competingErr = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-b", []CartLine{salad(2)})
		}
	})
	require.NoError(t, err)

	order, err := env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(3)})
	require.NoError(t, err)
	require.NoError(t, competingErr)

	mu.Lock()
	assert.Equal(t, 3, orderWrites)
	mu.Unlock()
	assert.Equal(t, int64(3), order.Version)

	current, err := env.store.ActiveOrder(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, current.Items, 2)
	mine, ok := current.FindLine("burger", "customer-a")
	require.True(t, ok)
	assert.Equal(t, 3, mine.Quantity)
	theirs, ok := current.FindLine("salad", "customer-b")
	require.True(t, ok)
	assert.Equal(t, 2, theirs.Quantity)
	assert.Equal(t, "38.00", current.Subtotal.StringFixed(2))
	assert.Equal(t, models.TokenSet{"customer-a", "customer-b"}, current.CustomerTokens)
}

func TestSessionRotationDuringMergeCannotReopenTable(t *testing.T) {
	env := setupWALTestEnv(t)
	ctx := context.Background()
	table := env.createTable(t, "14")

	var (
		once      sync.Once
		rotateErr error
	)
	err := env.db.Callback().Create().Before("gorm:create").Register("test:rotate_session", func(db *gorm.DB) {
		if !isOrdersStatement(db) {
			return
		}
		once.Do(func() {
			_, rotateErr = env.tables.RotateSession(ctx, table.ID, "manager")
		})
	})
	require.NoError(t, err)

	_, err = env.carts.SubmitCart(ctx, table.ID, table.SessionID, "customer-a", []CartLine{burger(1)})
	require.NoError(t, rotateErr)
	var closed *TableClosedError
	require.True(t, errors.As(err, &closed), "got %v", err)

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	rotated, err := env.tables.GetTable(ctx, table.ID)
	require.NoError(t, err)
	order, err := env.carts.SubmitCart(ctx, table.ID, rotated.SessionID, "customer-b", []CartLine{salad(1)})
	require.NoError(t, err)
	assert.Equal(t, rotated.SessionID, order.SessionID)
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrTableUnavailable  = errors.New("table is not taking orders right now, please contact staff")
	ErrTableClosed       = errors.New("this table's order has been closed, scan the table's QR code again to start a new order")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrConflict          = errors.New("concurrent update, retry")
	ErrInvalidInput      = errors.New("invalid input")
)

// TableClosedError is returned for stale QR sessions. It matches
// ErrTableClosed with errors.Is.
type TableClosedError struct {
	RestaurantName string `json:"restaurant_name"`
	TableLabel     string `json:"table_label"`
}

func (e *TableClosedError) Error() string {
	return fmt.Sprintf("%s: the order for table %s has been closed, scan the table's QR code again to start a new order",
		e.RestaurantName, e.TableLabel)
}

func (e *TableClosedError) Is(target error) bool {
	return target == ErrTableClosed
}

// refusalError is a Conflict caused by the current state of a row rather
// than by a lost race. Retrying cannot change its outcome.
type refusalError struct {
	msg string
}

func (e *refusalError) Error() string {
	return "conflict: " + e.msg
}

func (e *refusalError) Is(target error) bool {
	return target == ErrConflict
}

func refuse(format string, args ...interface{}) error {
	return &refusalError{msg: fmt.Sprintf(format, args...)}
}

// IsRefusal reports whether err is a Conflict that a retry would not clear.
func IsRefusal(err error) bool {
	var refusal *refusalError
	return errors.As(err, &refusal)
}

// MySQL server error numbers that mean another writer holds the row.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlDuplicateEntry  = 1062
)

// translateStorageError maps lock and uniqueness failures to ErrConflict so
// callers can retry from a fresh read. Any other error is returned as is.
func translateStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrConflict, err.Error())
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlDuplicateEntry:
			return errors.Wrap(ErrConflict, myErr.Message)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "UNIQUE constraint failed") {
		return errors.Wrap(ErrConflict, msg)
	}
	return err
}

package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/innerchild2401/qr-menu-sub004/models"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// Reasons recorded in the table status log.
const (
	ReasonStaffOverride = "staff_override"
	ReasonTableCleared  = "table_cleared"
	ReasonSessionRotate = "session_rotated"
	ReasonOrderPlaced   = "order_placed"
	ReasonOrderClosed   = "order_closed"
)

// TableRegistry owns table identity, physical status and the QR session.
// Status changes are compare-and-swap writes on Table.Version.
type TableRegistry struct {
	db   *gorm.DB
	opts Options
}

func NewTableRegistry(db *gorm.DB, opts Options) *TableRegistry {
	return &TableRegistry{db: db, opts: opts.withDefaults()}
}

func (r *TableRegistry) CreateTable(ctx context.Context, areaID uint, label string, capacity int) (*models.Table, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.Wrap(ErrInvalidInput, "label is required")
	}
	if capacity < 1 {
		return nil, errors.Wrap(ErrInvalidInput, "capacity must be positive")
	}

	table := &models.Table{
		AreaID:    areaID,
		Label:     label,
		Capacity:  capacity,
		Status:    models.TableStatusAvailable,
		SessionID: uuid.NewString(),
		Version:   1,
	}
	if err := r.db.WithContext(ctx).Create(table).Error; err != nil {
		return nil, errors.Wrap(err, "create table")
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id": table.ID,
		"area_id":  areaID,
	}).Infof("Table %s created", table.Label)
	r.opts.Notifier.NotifyTable(table)
	return table, nil
}

func (r *TableRegistry) GetTable(ctx context.Context, id uint) (*models.Table, error) {
	return r.load(r.db.WithContext(ctx), id)
}

// ListTables returns every table, or only those in status when it is set.
func (r *TableRegistry) ListTables(ctx context.Context, status string) ([]models.Table, error) {
	query := r.db.WithContext(ctx).Order("area_id ASC, label ASC")
	if status != "" {
		if !models.IsValidTableStatus(status) {
			return nil, errors.Wrapf(ErrInvalidInput, "unknown table status %q", status)
		}
		query = query.Where("status = ?", status)
	}
	tables := make([]models.Table, 0)
	if err := query.Find(&tables).Error; err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	return tables, nil
}

// StatusLog returns the most recent status transitions of a table.
func (r *TableRegistry) StatusLog(ctx context.Context, id uint, limit int) ([]models.TableStatusLog, error) {
	if _, err := r.GetTable(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	logs := make([]models.TableStatusLog, 0)
	err := r.db.WithContext(ctx).
		Where("table_id = ?", id).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load status log of table %d", id)
	}
	return logs, nil
}

// SetStatus is the staff maintenance override. Moving an occupied or
// cleaning table back to available is the "table cleared" action and
// rotates its session; it is refused while the table still has an open
// order. Only placement may occupy a table.
func (r *TableRegistry) SetStatus(ctx context.Context, id uint, status, actor string) (*models.Table, error) {
	if !models.IsValidTableStatus(status) {
		return nil, errors.Wrapf(ErrInvalidInput, "unknown table status %q", status)
	}

	var table *models.Table
	changed := false
	err := runInTx(ctx, r.db, r.opts.Retry, func(tx *gorm.DB) error {
		current, err := r.load(tx, id)
		if err != nil {
			return err
		}
		table, changed = current, false
		if current.Status == status {
			return nil
		}

		switch status {
		case models.TableStatusOccupied:
			return refuse("table %d can only become occupied by placing an order", id)
		case models.TableStatusAvailable:
			if current.Status == models.TableStatusOutOfService {
				return refuse("table %d is out of service, move it to cleaning first", id)
			}
			var open int64
			if err := tx.Model(&models.Order{}).Where("active_table_id = ?", id).Count(&open).Error; err != nil {
				return errors.Wrapf(err, "count active orders of table %d", id)
			}
			if open > 0 {
				return refuse("table %d still has an open order, close it first", id)
			}
			changed = true
			return r.transition(tx, current, status, true, actor, ReasonTableCleared)
		default:
			changed = true
			return r.transition(tx, current, status, false, actor, ReasonStaffOverride)
		}
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.opts.Notifier.NotifyTable(table)
	}
	return table, nil
}

// RotateSession invalidates every QR code previously printed for the table.
func (r *TableRegistry) RotateSession(ctx context.Context, id uint, actor string) (*models.Table, error) {
	var table *models.Table
	err := runInTx(ctx, r.db, r.opts.Retry, func(tx *gorm.DB) error {
		current, err := r.load(tx, id)
		if err != nil {
			return err
		}
		table = current
		return r.transition(tx, current, current.Status, true, actor, ReasonSessionRotate)
	})
	if err != nil {
		return nil, err
	}
	r.opts.Notifier.NotifyTable(table)
	return table, nil
}

func (r *TableRegistry) load(tx *gorm.DB, id uint) (*models.Table, error) {
	var table models.Table
	err := tx.Take(&table, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "table %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load table %d", id)
	}
	return &table, nil
}

// confirmSession bumps the table version only if the table still has the
// version and session read earlier in tx. Customer writes call it after
// their own write so that a session rotation committed in between turns
// the attempt into ErrConflict and the retry sees the new session.
func (r *TableRegistry) confirmSession(tx *gorm.DB, table *models.Table) error {
	now := time.Now()
	result := tx.Model(&models.Table{}).
		Where("id = ? AND version = ? AND session_id = ?", table.ID, table.Version, table.SessionID).
		Updates(map[string]interface{}{
			"version":    table.Version + 1,
			"updated_at": now,
		})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "confirm session of table %d", table.ID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrConflict, "table %d changed since version %d", table.ID, table.Version)
	}
	table.Version++
	table.UpdatedAt = now
	return nil
}

// occupy marks an available table occupied in the caller's transaction.
func (r *TableRegistry) occupy(tx *gorm.DB, table *models.Table) error {
	switch table.Status {
	case models.TableStatusAvailable:
		return r.transition(tx, table, models.TableStatusOccupied, false, "system", ReasonOrderPlaced)
	case models.TableStatusOccupied:
		return nil
	default:
		return errors.Wrapf(ErrTableUnavailable, "table %d is %s", table.ID, table.Status)
	}
}

// release frees the table after its order is closed and rotates the session.
// An out of service table stays out of service.
func (r *TableRegistry) release(tx *gorm.DB, table *models.Table, actor string) error {
	to := models.TableStatusAvailable
	if table.Status == models.TableStatusOutOfService {
		to = models.TableStatusOutOfService
	}
	return r.transition(tx, table, to, true, actor, ReasonOrderClosed)
}

// transition writes the new status, optionally with a fresh session id, and
// appends the status log row. table is updated in place on success.
func (r *TableRegistry) transition(tx *gorm.DB, table *models.Table, to string, rotate bool, actor, reason string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     to,
		"version":    table.Version + 1,
		"updated_at": now,
	}
	session := table.SessionID
	if rotate {
		session = uuid.NewString()
		updates["session_id"] = session
	}

	result := tx.Model(&models.Table{}).
		Where("id = ? AND version = ?", table.ID, table.Version).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update table %d", table.ID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrConflict, "table %d changed since version %d", table.ID, table.Version)
	}

	entry := models.TableStatusLog{
		TableID:        table.ID,
		Actor:          actor,
		FromStatus:     table.Status,
		ToStatus:       to,
		SessionRotated: rotate,
		Reason:         reason,
	}
	if err := tx.Omit(clause.Associations).Create(&entry).Error; err != nil {
		return errors.Wrapf(err, "log status of table %d", table.ID)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id": table.ID,
		"from":     table.Status,
		"to":       to,
		"rotated":  rotate,
		"actor":    actor,
	}).Info("Table status changed")

	table.Status = to
	table.SessionID = session
	table.Version++
	table.UpdatedAt = now
	return nil
}

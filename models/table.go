package models

import "time"

// Physical table states.
const (
	TableStatusAvailable    = "available"
	TableStatusOccupied     = "occupied"
	TableStatusCleaning     = "cleaning"
	TableStatusOutOfService = "out_of_service"
)

type Table struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AreaID    uint      `gorm:"not null;index" json:"area_id"`
	Label     string    `gorm:"type:varchar(50);not null" json:"label"`
	Capacity  int       `gorm:"not null" json:"capacity"`
	Status    string    `gorm:"type:varchar(20);not null;default:'available'" json:"status"`
	SessionID string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// IsValidTableStatus reports whether s is one of the known table states.
func IsValidTableStatus(s string) bool {
	switch s {
	case TableStatusAvailable, TableStatusOccupied, TableStatusCleaning, TableStatusOutOfService:
		return true
	}
	return false
}

// AcceptsOrders is false while the table is being cleaned or is out of service.
func (t *Table) AcceptsOrders() bool {
	return t.Status != TableStatusCleaning && t.Status != TableStatusOutOfService
}

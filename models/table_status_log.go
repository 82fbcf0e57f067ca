package models

import (
	"time"
)

// TableStatusLog records every status change or session rotation of a table.
type TableStatusLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TableID        uint      `gorm:"not null;index" json:"table_id"`
	Table          Table     `gorm:"foreignKey:TableID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Actor          string    `gorm:"type:varchar(100);not null" json:"actor"`
	FromStatus     string    `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus       string    `gorm:"type:varchar(20);not null" json:"to_status"`
	SessionRotated bool      `gorm:"not null;default:false" json:"session_rotated"`
	Reason         string    `gorm:"type:varchar(50);not null" json:"reason"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

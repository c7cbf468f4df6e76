package model

import (
	"time"

	"gorm.io/datatypes"
)

// Stroke rows are append only. Seq is the commit cursor used for replay.
type Stroke struct {
	Seq       int64          `gorm:"primaryKey;autoIncrement"`
	Id        string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_strokes_room_stroke"`
	RoomId    int64          `gorm:"not null;index;uniqueIndex:idx_strokes_room_stroke"`
	UserId    string         `gorm:"type:varchar(64);not null"`
	UserName  string         `gorm:"type:varchar(64)"`
	Points    datatypes.JSON `gorm:"type:jsonb;not null"`
	Color     string         `gorm:"type:varchar(16);not null"`
	Width     float64        `gorm:"not null"`
	Tool      string         `gorm:"type:varchar(16);not null;default:'pen'"`
	LayerId   int            `gorm:"not null;default:1"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (Stroke) TableName() string {
	return "strokes"
}

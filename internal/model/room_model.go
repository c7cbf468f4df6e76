package model

import "time"

type Room struct {
	Id                  int64      `gorm:"primaryKey;autoIncrement"`
	Name                string     `gorm:"type:varchar(100);not null"`
	IsActive            bool       `gorm:"not null;default:false;index"`
	SessionStartAt      *time.Time `gorm:"index"`
	LastSessionImageUrl *string    `gorm:"type:text"`
	LastSessionEndedAt  *time.Time
	ThumbnailUrl        *string `gorm:"type:text"`
	ThumbnailUpdatedAt  *time.Time
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (Room) TableName() string {
	return "rooms"
}

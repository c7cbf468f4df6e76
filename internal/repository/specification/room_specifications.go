package specification

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActiveRooms struct{}

func (s ActiveRooms) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

// StartedBefore matches active rooms whose session began before Cutoff.
type StartedBefore struct {
	Cutoff time.Time
}

func (s StartedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ? AND session_start_at < ?", true, s.Cutoff)
}

// ForShare holds a share lock on the matched rooms until the transaction
// ends. A concurrent Deactivate waits for it.
type ForShare struct{}

func (ForShare) Apply(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "SHARE"})
}

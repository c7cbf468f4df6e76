package specification

import (
	"paintroom-be/internal/repository/scope"

	"gorm.io/gorm"
)

type ByRoomID struct {
	RoomID int64
}

func (s ByRoomID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("room_id = ?", s.RoomID)
}

// AfterSeq is the replay cursor. A nil Seq means from the beginning.
type AfterSeq struct {
	Seq *int64
}

func (s AfterSeq) Apply(db *gorm.DB) *gorm.DB {
	if s.Seq == nil {
		return db
	}
	return db.Where("seq > ?", *s.Seq)
}

type InCommitOrder struct{}

func (s InCommitOrder) Apply(db *gorm.DB) *gorm.DB {
	return db.Scopes(scope.OrderBySeqAsc)
}

package specification

import (
	"paintroom-be/internal/repository/scope"

	"gorm.io/gorm"
)

// Specification narrows a gorm query. Repositories apply them in order.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

type ByID struct {
	ID int64
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// InIDOrder lists rows oldest first, which for rooms is the lobby order.
type InIDOrder struct{}

func (InIDOrder) Apply(db *gorm.DB) *gorm.DB {
	return db.Scopes(scope.OrderByIdAsc)
}

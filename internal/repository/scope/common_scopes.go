package scope

import "gorm.io/gorm"

// OrderBySeqAsc yields strokes in commit order.
func OrderBySeqAsc(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func OrderByIdAsc(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

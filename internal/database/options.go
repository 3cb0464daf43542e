package database

import (
	"fmt"

	"github.com/codelore/codelore/domain/repo"
	"gorm.io/gorm"
)

// ApplyOptions translates repo.Option values into a GORM query:
// conditions, raw where clauses, ordering, and pagination.
func ApplyOptions(db *gorm.DB, options ...repo.Option) *gorm.DB {
	q := repo.Build(options...)
	db = applyFilters(db, q)

	for _, ord := range q.Orders() {
		dir := "ASC"
		if !ord.Ascending() {
			dir = "DESC"
		}
		db = db.Order(fmt.Sprintf("%s %s", ord.Field(), dir))
	}
	if q.LimitValue() > 0 {
		db = db.Limit(q.LimitValue())
	}
	if q.OffsetValue() > 0 {
		db = db.Offset(q.OffsetValue())
	}
	return db
}

// ApplyConditions translates only the filtering options, for COUNT
// queries where ordering and pagination would be meaningless.
func ApplyConditions(db *gorm.DB, options ...repo.Option) *gorm.DB {
	return applyFilters(db, repo.Build(options...))
}

func applyFilters(db *gorm.DB, q repo.Query) *gorm.DB {
	for _, cond := range q.Conditions() {
		op := "="
		if cond.In() {
			op = "IN"
		}
		db = db.Where(fmt.Sprintf("%s %s ?", cond.Field(), op), cond.Value())
	}
	for _, where := range q.Wheres() {
		db = db.Where(where.Clause(), where.Args()...)
	}
	return db
}

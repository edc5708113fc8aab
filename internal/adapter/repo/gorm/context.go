package gormrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txKeyType struct{}

var txKey = txKeyType{}

func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

func getDBFromCtx(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := txFromCtx(ctx); ok {
		return tx
	}
	return base.WithContext(ctx)
}

func txFromCtx(ctx context.Context) (*gorm.DB, bool) {
	if v := ctx.Value(txKey); v != nil {
		if tx, ok := v.(*gorm.DB); ok && tx != nil {
			return tx, true
		}
	}
	return nil, false
}

// forUpdate locks the selected rows when running inside RunInTx.
func forUpdate(ctx context.Context, db *gorm.DB) *gorm.DB {
	if _, ok := txFromCtx(ctx); ok {
		return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return db
}

package gormrepo

import (
	"context"
	"errors"
	"time"

	"mearth/internal/adapter/repo/gorm/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVCache is a ports.Cache on the kv_entries table, for deployments that
// run Postgres without Redis.
type KVCache struct {
	db  *gorm.DB
	now func() time.Time
}

func NewKVCache(db *gorm.DB) KVCache {
	return KVCache{db: db, now: time.Now}
}

func (c KVCache) Get(ctx context.Context, key string) (string, bool, error) {
	var m model.KvEntry
	err := getDBFromCtx(ctx, c.db).
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, c.now()).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.Value, true, nil
}

func (c KVCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m := model.KvEntry{Key: key, Value: value}
	if ttl > 0 {
		exp := c.now().Add(ttl)
		m.ExpiresAt = &exp
	}
	return getDBFromCtx(ctx, c.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&m).Error
}

func (c KVCache) Delete(ctx context.Context, key string) error {
	return getDBFromCtx(ctx, c.db).Where("key = ?", key).Delete(&model.KvEntry{}).Error
}

package gormrepo

import (
	"context"
	"time"

	"mearth/internal/adapter/repo/gorm/model"
	"mearth/internal/domain/game"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutcomeRepo stores battle outcomes and prunes those older than retention
// on every append.
type OutcomeRepo struct {
	db        *gorm.DB
	retention time.Duration
}

func NewOutcomeRepo(db *gorm.DB, retention time.Duration) OutcomeRepo {
	return OutcomeRepo{db: db, retention: retention}
}

func (r OutcomeRepo) Append(ctx context.Context, o game.BattleOutcome) error {
	db := getDBFromCtx(ctx, r.db)
	m := model.BattleOutcome{
		BattleID:          o.BattleID,
		Attacker:          o.Attacker,
		Defender:          o.Defender,
		Winner:            o.Winner,
		Loser:             o.Loser,
		TokensBurned:      int64(o.TokensBurned),
		TokensTransferred: int64(o.TokensTransferred),
		BurnPercent:       int32(o.BurnPercent),
		DeathOccurred:     o.DeathOccurred,
		EndedAt:           o.EndedAt,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return err
	}
	if r.retention <= 0 {
		return nil
	}
	return db.Where("ended_at <= ?", o.EndedAt.Add(-r.retention)).Delete(&model.BattleOutcome{}).Error
}

func (r OutcomeRepo) ListSince(ctx context.Context, since time.Time) ([]game.BattleOutcome, error) {
	var rows []model.BattleOutcome
	if err := getDBFromCtx(ctx, r.db).Where("ended_at >= ?", since).Order("ended_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]game.BattleOutcome, 0, len(rows))
	for _, m := range rows {
		out = append(out, game.BattleOutcome{
			BattleID:          m.BattleID,
			Attacker:          m.Attacker,
			Defender:          m.Defender,
			Winner:            m.Winner,
			Loser:             m.Loser,
			TokensBurned:      uint64(m.TokensBurned),
			TokensTransferred: uint64(m.TokensTransferred),
			BurnPercent:       int(m.BurnPercent),
			DeathOccurred:     m.DeathOccurred,
			EndedAt:           m.EndedAt,
		})
	}
	return out, nil
}

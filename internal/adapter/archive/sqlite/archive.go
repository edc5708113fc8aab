// Package sqlitearchive keeps a permanent local copy of every published
// event, and of every battle, in a SQLite file.
package sqlitearchive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"mearth/internal/domain/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	type TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_agent_idx ON events (agent_id, id);

CREATE TABLE IF NOT EXISTS battles (
	battle_id TEXT PRIMARY KEY,
	attacker TEXT NOT NULL,
	defender TEXT NOT NULL,
	winner TEXT NOT NULL,
	loser TEXT NOT NULL,
	tokens_burned INTEGER NOT NULL,
	tokens_transferred INTEGER NOT NULL,
	burn_percent INTEGER NOT NULL,
	death_occurred INTEGER NOT NULL,
	ended_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS battles_ended_idx ON battles (ended_at);
`

type Archive struct {
	conn *sqlx.DB
}

func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("empty archive path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	return &Archive{conn: conn}, nil
}

func (a *Archive) Close() error {
	return a.conn.Close()
}

type eventRow struct {
	AgentID    string `db:"agent_id"`
	Type       string `db:"type"`
	OccurredAt string `db:"occurred_at"`
	Payload    string `db:"payload"`
}

type battleRow struct {
	BattleID          string `db:"battle_id"`
	Attacker          string `db:"attacker"`
	Defender          string `db:"defender"`
	Winner            string `db:"winner"`
	Loser             string `db:"loser"`
	TokensBurned      int64  `db:"tokens_burned"`
	TokensTransferred int64  `db:"tokens_transferred"`
	BurnPercent       int    `db:"burn_percent"`
	DeathOccurred     bool   `db:"death_occurred"`
	EndedAt           string `db:"ended_at"`
}

// Publish stores the events and lifts battle_resolved payloads into the
// battles table. A battle seen twice is stored once.
func (a *Archive) Publish(ctx context.Context, agentID string, events []game.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := a.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		row := eventRow{
			AgentID:    agentID,
			Type:       e.Type,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
			Payload:    string(payload),
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO events (agent_id, type, occurred_at, payload) VALUES (:agent_id, :type, :occurred_at, :payload)`, row); err != nil {
			return fmt.Errorf("archive event: %w", err)
		}
		if e.Type != game.EventBattleResolved {
			continue
		}
		b, ok := battleFromPayload(e)
		if !ok {
			continue
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT OR IGNORE INTO battles
			(battle_id, attacker, defender, winner, loser, tokens_burned, tokens_transferred, burn_percent, death_occurred, ended_at)
			VALUES (:battle_id, :attacker, :defender, :winner, :loser, :tokens_burned, :tokens_transferred, :burn_percent, :death_occurred, :ended_at)`, b); err != nil {
			return fmt.Errorf("archive battle: %w", err)
		}
	}
	return tx.Commit()
}

// EventsByAgent returns the newest archived events first.
func (a *Archive) EventsByAgent(ctx context.Context, agentID string, limit int) ([]game.DomainEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := a.conn.SelectContext(ctx, &rows,
		`SELECT agent_id, type, occurred_at, payload FROM events WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]game.DomainEvent, 0, len(rows))
	for _, r := range rows {
		at, _ := time.Parse(time.RFC3339Nano, r.OccurredAt)
		var payload map[string]any
		_ = json.Unmarshal([]byte(r.Payload), &payload)
		out = append(out, game.DomainEvent{Type: r.Type, OccurredAt: at, Payload: payload})
	}
	return out, nil
}

// BattlesSince returns archived battles ended at or after since, oldest first.
func (a *Archive) BattlesSince(ctx context.Context, since time.Time) ([]game.BattleOutcome, error) {
	var rows []battleRow
	err := a.conn.SelectContext(ctx, &rows,
		`SELECT * FROM battles WHERE ended_at >= ? ORDER BY ended_at`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	out := make([]game.BattleOutcome, 0, len(rows))
	for _, r := range rows {
		ended, _ := time.Parse(time.RFC3339Nano, r.EndedAt)
		out = append(out, game.BattleOutcome{
			BattleID:          r.BattleID,
			Attacker:          r.Attacker,
			Defender:          r.Defender,
			Winner:            r.Winner,
			Loser:             r.Loser,
			TokensBurned:      uint64(r.TokensBurned),
			TokensTransferred: uint64(r.TokensTransferred),
			BurnPercent:       r.BurnPercent,
			DeathOccurred:     r.DeathOccurred,
			EndedAt:           ended,
		})
	}
	return out, nil
}

func (a *Archive) CountByType(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Type  string `db:"type"`
		Count int    `db:"n"`
	}
	if err := a.conn.SelectContext(ctx, &rows, `SELECT type, COUNT(*) AS n FROM events GROUP BY type`); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Count
	}
	return out, nil
}

func battleFromPayload(e game.DomainEvent) (battleRow, bool) {
	id, _ := e.Payload["battle_id"].(string)
	if id == "" {
		return battleRow{}, false
	}
	str := func(k string) string { s, _ := e.Payload[k].(string); return s }
	return battleRow{
		BattleID:          id,
		Attacker:          str("attacker"),
		Defender:          str("defender"),
		Winner:            str("winner"),
		Loser:             str("loser"),
		TokensBurned:      toInt64(e.Payload["tokens_burned"]),
		TokensTransferred: toInt64(e.Payload["tokens_transferred"]),
		BurnPercent:       int(toInt64(e.Payload["burn_percent"])),
		DeathOccurred:     e.Payload["death_occurred"] == true,
		EndedAt:           e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}, true
}

// toInt64 accepts the numeric types a payload holds before and after a
// JSON round trip.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

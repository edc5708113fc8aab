// Package natsbus publishes domain events on NATS subjects of the form
// <prefix>.<agent_id>.<event_type>.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"mearth/internal/domain/game"
)

const DefaultPrefix = "mearth.events"

type Message struct {
	AgentID    string         `json:"agent_id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type Bus struct {
	conn   *nats.Conn
	prefix string
}

func Connect(url, prefix string) (*Bus, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("mearth"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return New(conn, prefix), nil
}

func New(conn *nats.Conn, prefix string) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bus{conn: conn, prefix: prefix}
}

func (b *Bus) Subject(agentID, eventType string) string {
	return b.prefix + "." + token(agentID) + "." + token(eventType)
}

func (b *Bus) Publish(ctx context.Context, agentID string, events []game.DomainEvent) error {
	for _, e := range events {
		data, err := json.Marshal(Message{AgentID: agentID, Type: e.Type, OccurredAt: e.OccurredAt, Payload: e.Payload})
		if err != nil {
			return err
		}
		if err := b.conn.Publish(b.Subject(agentID, e.Type), data); err != nil {
			return err
		}
	}
	if len(events) == 0 {
		return nil
	}
	return b.conn.FlushWithContext(ctx)
}

// Subscribe delivers every event under the prefix. Pass "*" as agentID to
// follow all agents.
func (b *Bus) Subscribe(agentID string, fn func(Message)) (*nats.Subscription, error) {
	subject := b.prefix + "." + token(agentID) + ".>"
	return b.conn.Subscribe(subject, func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return
		}
		fn(msg)
	})
}

func (b *Bus) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}

// token keeps agent ids from splitting a subject into extra levels.
func token(s string) string {
	if s == "*" || s == ">" {
		return s
	}
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	if s = r.Replace(s); s == "" {
		return "_"
	}
	return s
}

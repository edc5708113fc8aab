// Package poster delivers the agents' one-line status posts.
package poster

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mearth/internal/adapter/httpclient"
	"mearth/internal/app/ports"
)

// Log writes posts to the logger instead of publishing them.
type Log struct {
	Logger *slog.Logger
	Now    func() time.Time
}

func (p Log) Post(ctx context.Context, text string) (ports.PostReceipt, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	id := "log-" + uuid.NewString()
	logger.InfoContext(ctx, "post", "post_id", id, "text", text)
	return ports.PostReceipt{ID: id, PostedAt: now().UTC()}, nil
}

// Webhook posts {"text": ...} to a URL and expects {"id": ...} back.
type Webhook struct {
	URL    string
	Client *httpclient.Client
	Now    func() time.Time
}

type webhookReply struct {
	ID string `json:"id"`
}

func (p Webhook) Post(ctx context.Context, text string) (ports.PostReceipt, error) {
	var reply webhookReply
	if err := p.Client.PostJSON(ctx, p.URL, nil, map[string]string{"text": text}, &reply); err != nil {
		return ports.PostReceipt{}, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	id := reply.ID
	if id == "" {
		id = uuid.NewString()
	}
	return ports.PostReceipt{ID: id, PostedAt: now().UTC()}, nil
}

// Fanout posts to every poster. The first receipt wins; errors are joined
// and only returned when no poster succeeded.
type Fanout []ports.Poster

func (f Fanout) Post(ctx context.Context, text string) (ports.PostReceipt, error) {
	var (
		first ports.PostReceipt
		ok    bool
		errs  []error
	)
	for _, p := range f {
		r, err := p.Post(ctx, text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			first, ok = r, true
		}
	}
	if ok {
		return first, nil
	}
	if len(errs) == 0 {
		return ports.PostReceipt{}, errors.New("no posters configured")
	}
	return ports.PostReceipt{}, errors.Join(errs...)
}

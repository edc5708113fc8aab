// Package httpclient posts JSON over the hertz client for the outbound
// adapters.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const maxErrorBody = 512

// StatusError is a non-2xx reply.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s: status %d: %s", e.URL, e.Status, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == consts.StatusTooManyRequests || e.Status >= 500
}

// IsTemporary is true for transport failures and retryable statuses.
func IsTemporary(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return err != nil
}

type Client struct {
	hc      *client.Client
	timeout time.Duration
}

func New(timeout time.Duration) (*Client, error) {
	hc, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("hertz client: %w", err)
	}
	return &Client{hc: hc, timeout: timeout}, nil
}

// PostJSON sends in as JSON and decodes a 2xx reply into out, which may be
// nil. The request ends at the earlier of the client timeout and the ctx
// deadline, and returns as soon as ctx is cancelled.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return fmt.Errorf("POST %s: %w", url, context.DeadlineExceeded)
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	release := func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}

	req.SetRequestURI(url)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	done := make(chan error, 1)
	go func() {
		if timeout > 0 {
			done <- c.hc.DoTimeout(ctx, req, resp, timeout)
			return
		}
		done <- c.hc.Do(ctx, req, resp)
	}()
	select {
	case err = <-done:
	case <-ctx.Done():
		// req and resp belong to the request goroutine until it returns.
		go func() {
			<-done
			release()
		}()
		return fmt.Errorf("POST %s: %w", url, ctx.Err())
	}
	defer release()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("POST %s: %w", url, ctxErr)
		}
		return fmt.Errorf("POST %s: %w", url, err)
	}
	status := resp.StatusCode()
	if status < 200 || status > 299 {
		b := resp.Body()
		if len(b) > maxErrorBody {
			b = b[:maxErrorBody]
		}
		return &StatusError{URL: url, Status: status, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s reply: %w", url, err)
	}
	return nil
}

package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	c, err := New(time.Second)
	require.NoError(t, err)
	var out map[string]string
	err = c.PostJSON(context.Background(), srv.URL, map[string]string{"Authorization": "Bearer k"}, map[string]string{"msg": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
}

func TestClient_StatusErrors(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c, err := New(time.Second)
	require.NoError(t, err)

	err = c.PostJSON(context.Background(), srv.URL, nil, struct{}{}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "nope", se.Body)
	assert.False(t, IsTemporary(err))

	status = http.StatusServiceUnavailable
	err = c.PostJSON(context.Background(), srv.URL, nil, struct{}{}, nil)
	assert.True(t, IsTemporary(err))
}

func slowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_HonoursContextDeadline(t *testing.T) {
	srv := slowServer(t, 2*time.Second)
	c, err := New(time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = c.PostJSON(ctx, srv.URL, nil, struct{}{}, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, IsTemporary(err))
}

func TestClient_ReturnsOnCancel(t *testing.T) {
	srv := slowServer(t, 2*time.Second)
	c, err := New(0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	err = c.PostJSON(ctx, srv.URL, nil, struct{}{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_DoneContextSkipsRequest(t *testing.T) {
	c, err := New(time.Second)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.PostJSON(ctx, "http://127.0.0.1:1/never", nil, struct{}{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

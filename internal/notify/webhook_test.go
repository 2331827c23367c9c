package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookNotifier_PostsEnvelope(t *testing.T) {
	var got webhookEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL}, zap.NewNop())
	err := n.Notify(context.Background(), "delegation_created", []string{"tech-a", "tech-b"}, json.RawMessage(`{"delegation_id":"d1"}`))
	require.NoError(t, err)
	assert.Equal(t, "delegation_created", got.Kind)
	assert.Equal(t, []string{"tech-a", "tech-b"}, got.Recipients)
	assert.JSONEq(t, `{"delegation_id":"d1"}`, string(got.Payload))
}

func TestWebhookNotifier_OpensBreakerAfterFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	assert.Error(t, n.Notify(ctx, "k", nil, json.RawMessage(`{}`)))
	assert.Error(t, n.Notify(ctx, "k", nil, json.RawMessage(`{}`)))
	assert.Equal(t, gobreaker.StateOpen, n.State())

	err := n.Notify(ctx, "k", nil, json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	assert.NoError(t, n.Notify(context.Background(), "k", nil, json.RawMessage(`{}`)))
}

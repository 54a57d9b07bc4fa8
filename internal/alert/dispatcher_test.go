package alert_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vigilhq/vigil/internal/alert"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

type stubChannel struct {
	name string
	err  error
	sent int
}

func (s *stubChannel) Name() string {
	return s.name
}

func (s *stubChannel) Send(context.Context, *alert.Notification) error {
	s.sent++
	return s.err
}

func notification() *alert.Notification {
	return &alert.Notification{
		Kind: alert.KindOpened,
		Incident: &api.Incident{
			ID:       "inc-1",
			Severity: api.SeverityCritical,
			Title:    "Flow checkout is failing",
			OpenedAt: time.Now(),
		},
		Flow: &api.Flow{ID: "flow-1", Name: "checkout"},
	}
}

func TestNotifyAllSucceed(t *testing.T) {
	slack := &stubChannel{name: "slack"}
	email := &stubChannel{name: "email"}
	d := alert.NewDispatcher(
		log.New("test", "test", "0.0.0"), slack, email)

	got := d.Notify(context.Background(), notification())

	assert.Equal(t, 2, got.Len())
	assert.True(t, got.Contains("slack"))
	assert.True(t, got.Contains("email"))
}

func TestNotifyFailureExcludedNotFatal(t *testing.T) {
	slack := &stubChannel{name: "slack", err: errors.New("HTTP 500")}
	email := &stubChannel{name: "email"}
	d := alert.NewDispatcher(
		log.New("test", "test", "0.0.0"), slack, email)

	got := d.Notify(context.Background(), notification())

	assert.False(t, got.Contains("slack"))
	assert.True(t, got.Contains("email"))
	assert.Equal(t, 1, slack.sent, "the failing channel was attempted")
	assert.Equal(t, 1, email.sent,
		"one channel failing never blocks another")
}

func TestNotifyNoChannels(t *testing.T) {
	d := alert.NewDispatcher(log.New("test", "test", "0.0.0"))

	got := d.Notify(context.Background(), notification())

	assert.True(t, got.IsEmpty())
}

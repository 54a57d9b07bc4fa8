package alert_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vigilhq/vigil/internal/alert"
	"github.com/vigilhq/vigil/pkg/api"
)

func resolvedNotification() *alert.Notification {
	opened := time.Now().Add(-10 * time.Minute)
	resolved := time.Now()
	return &alert.Notification{
		Kind: alert.KindResolved,
		Incident: &api.Incident{
			ID:         "inc-1",
			Severity:   api.SeverityCritical,
			Title:      "Flow checkout is failing",
			OpenedAt:   opened,
			ResolvedAt: &resolved,
		},
		Flow: &api.Flow{ID: "flow-1", Name: "checkout"},
	}
}

func TestSlackSendOpened(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &payload)
			w.WriteHeader(http.StatusOK)
		}))
	defer srv.Close()

	n := notification()
	n.FailedStep = &api.Step{Position: 2, Name: "Add to cart"}
	ch := alert.NewSlackChannel(srv.URL, "https://vigil.example")

	assert.NoError(t, ch.Send(context.Background(), n))

	attachments := payload["attachments"].([]any)
	att := attachments[0].(map[string]any)
	assert.Contains(t, att["title"], "Flow checkout is failing")
	assert.Equal(t, "#dc3545", att["color"])

	var fieldTitles []string
	for _, f := range att["fields"].([]any) {
		fieldTitles = append(fieldTitles,
			f.(map[string]any)["title"].(string))
	}
	assert.Contains(t, fieldTitles, "Failed Step")
	assert.Contains(t, fieldTitles, "Incident")
}

func TestSlackSendResolvedColor(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &payload)
		}))
	defer srv.Close()

	ch := alert.NewSlackChannel(srv.URL, "")
	assert.NoError(t, ch.Send(context.Background(), resolvedNotification()))

	att := payload["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "#36a64f", att["color"])
}

func TestSlackSendNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "invalid_payload", http.StatusBadRequest)
		}))
	defer srv.Close()

	ch := alert.NewSlackChannel(srv.URL, "")
	err := ch.Send(context.Background(), notification())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
}

// Package alert fans incident notifications out to the configured
// channels. Channels are independent and best-effort: one failing never
// blocks the others or the incident transition that triggered it
package alert

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/util"
)

type (
	// Kind distinguishes opened from resolved notifications
	Kind string

	// Notification is the material a channel renders into its message.
	// FailedStep is nil for resolutions and for failures with no
	// attributable step
	Notification struct {
		Kind       Kind
		Incident   *api.Incident
		Flow       *api.Flow
		FailedStep *api.Step
	}

	// Channel delivers one notification over one medium
	Channel interface {
		Name() string
		Send(ctx context.Context, n *Notification) error
	}

	// Dispatcher attempts every configured channel concurrently and
	// reports the set that succeeded
	Dispatcher struct {
		channels []Channel
		logger   *slog.Logger
	}
)

const (
	KindOpened   Kind = "opened"
	KindResolved Kind = "resolved"
)

// NewDispatcher creates a Dispatcher over the given channels. An
// unconfigured channel is simply absent here, not failed
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logger:   logger,
	}
}

// Notify sends the notification on every channel and returns the names
// of the ones that succeeded. Failures are logged and excluded
func (d *Dispatcher) Notify(
	ctx context.Context, n *Notification,
) util.Set[string] {
	succeeded := util.Set[string]{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, n); err != nil {
				d.logger.Error("alert channel failed",
					log.Channel(ch.Name()),
					log.IncidentID(n.Incident.ID),
					log.Error(err))
				return
			}
			mu.Lock()
			succeeded.Add(ch.Name())
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	d.logger.Info("alert dispatched",
		log.IncidentID(n.Incident.ID),
		slog.String("kind", string(n.Kind)),
		slog.Int("succeeded", succeeded.Len()),
		slog.Int("attempted", len(d.channels)))
	return succeeded
}

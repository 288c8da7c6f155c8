package delivery

import (
	"context"
	"log/slog"
	"time"
)

// Result reports the outcome of one dispatched send.
type Result struct {
	Notification Notification
	Err          error
}

// Dispatcher sends notifications without blocking the issuing operation.
// The entitlement record is always persisted before dispatch, so a provider
// outage can delay the recipient's claim message but never lose their
// credential; failures are logged for operator retry.
type Dispatcher struct {
	service Service
	logger  *slog.Logger
	timeout time.Duration
	// onFailure, when set, observes failed sends (metrics hook).
	onFailure func()
}

func NewDispatcher(service Service, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{service: service, logger: logger, timeout: timeout}
}

// OnFailure registers a callback invoked for each failed send.
func (d *Dispatcher) OnFailure(fn func()) {
	d.onFailure = fn
}

// Dispatch sends the notification on a fresh goroutine with a bounded
// timeout, detached from the caller's context so request completion does
// not cancel the send. The returned channel receives exactly one Result and
// is buffered, so callers are free to ignore it.
func (d *Dispatcher) Dispatch(n Notification) <-chan Result {
	results := make(chan Result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.service.Send(ctx, n)
		if err != nil {
			d.logger.Error("claim notification delivery failed",
				"channel", string(n.Channel),
				"template", n.TemplateID,
				"error", err,
			)
			if d.onFailure != nil {
				d.onFailure()
			}
		}
		results <- Result{Notification: n, Err: err}
	}()
	return results
}

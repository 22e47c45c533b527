package workers

import (
	"context"
	"time"

	"challenge-quest/metrics"
	"challenge-quest/models"
	"challenge-quest/queue"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// EventSource is the slice of the store the relay reads and acknowledges.
type EventSource interface {
	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventPublished(ctx context.Context, id int64, at time.Time) error
	MarkEventFailed(ctx context.Context, id int64, reason string) error
	MarkEventDead(ctx context.Context, id int64, at time.Time) error
}

type EventRelay struct {
	Events    EventSource
	Publisher queue.Publisher
	Clock     clockwork.Clock
	Log       logrus.FieldLogger
	BatchSize int

	// MaxAttempts is how many failed publishes an event gets before it is
	// dead-lettered. Zero retries forever.
	MaxAttempts int
}

func NewEventRelay(events EventSource, pub queue.Publisher, clock clockwork.Clock, log logrus.FieldLogger) *EventRelay {
	return &EventRelay{Events: events, Publisher: pub, Clock: clock, Log: log, BatchSize: 100, MaxAttempts: 10}
}

// RelayOnce publishes pending events in id order. It stops at the first
// publish failure so consumers never see events out of order, unless that
// failure exhausts the event's attempts: the event is then dead-lettered and
// the pass moves on.
func (r *EventRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.Events.PendingEvents(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, e := range events {
		if err := r.Publisher.Publish(ctx, e); err != nil {
			metrics.FailedEvents.Inc()
			attempts := e.Attempts + 1
			if markErr := r.Events.MarkEventFailed(ctx, e.ID, err.Error()); markErr != nil {
				r.Log.WithError(markErr).WithField("event_id", e.ID).Error("failed to record publish failure")
			}
			entry := r.Log.WithError(err).WithFields(logrus.Fields{
				"event_id":   e.ID,
				"event_type": e.Type,
				"attempts":   attempts,
			})
			if r.MaxAttempts <= 0 || attempts < r.MaxAttempts {
				entry.Warn("event publish failed")
				return sent, nil
			}
			if err := r.Events.MarkEventDead(ctx, e.ID, r.Clock.Now().UTC()); err != nil {
				return sent, err
			}
			metrics.DeadEvents.Inc()
			entry.Error("event dead-lettered")
			continue
		}
		if err := r.Events.MarkEventPublished(ctx, e.ID, r.Clock.Now().UTC()); err != nil {
			return sent, err
		}
		metrics.PublishedEvents.Inc()
		sent++
	}
	return sent, nil
}

// Run polls until ctx is cancelled.
func (r *EventRelay) Run(ctx context.Context, interval time.Duration) {
	r.Log.WithField("interval", interval.String()).Info("event relay started")
	ticker := r.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Log.Info("event relay stopped")
			return
		case <-ticker.Chan():
			sent, err := r.RelayOnce(ctx)
			if err != nil {
				r.Log.WithError(err).Error("event relay pass failed")
				continue
			}
			if sent > 0 {
				r.Log.WithField("count", sent).Debug("events relayed")
			}
		}
	}
}

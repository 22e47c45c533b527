package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	failOn int64
	sent   []int64
}

func (p *recordingPublisher) Publish(_ context.Context, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.ID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, e.ID)
	return nil
}

func (p *recordingPublisher) ids() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.sent...)
}

func seedEvents(t *testing.T, store *repository.MemoryStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.AddEvent(context.Background(), &models.Event{Type: models.EventStageCompleted, AggregateID: "p1"}))
	}
}

func TestRelayOnceStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clock.Now)
	seedEvents(t, store, 3)
	pub := &recordingPublisher{failOn: 2}
	log, hook := test.NewNullLogger()
	relay := NewEventRelay(store, pub, clock, log)

	sent, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, pub.ids())
	assert.Equal(t, "event publish failed", hook.LastEntry().Message)

	pending, err := store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(2), pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "broker unavailable", pending[0].LastError)

	pub.failOn = 0
	sent, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2, 3}, pub.ids())

	pending, err = store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRelayDeadLettersExhaustedEvent(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clock.Now)
	seedEvents(t, store, 3)
	pub := &recordingPublisher{failOn: 2}
	log, hook := test.NewNullLogger()
	relay := NewEventRelay(store, pub, clock, log)
	relay.MaxAttempts = 2

	sent, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "event publish failed", hook.LastEntry().Message)

	sent, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "events behind the dead one still go out")
	assert.Equal(t, []int64{1, 3}, pub.ids())

	var dead bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "event dead-lettered" {
			dead = true
			assert.Equal(t, int64(2), entry.Data["event_id"])
			assert.Equal(t, 2, entry.Data["attempts"])
		}
	}
	assert.True(t, dead)

	pending, err := store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRelayRunUntilCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := repository.NewMemoryStore(clock.Now)
	seedEvents(t, store, 2)
	pub := &recordingPublisher{}
	log, _ := test.NewNullLogger()
	relay := NewEventRelay(store, pub, clock, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx, time.Second)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return len(pub.ids()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository/memory"
)

type sliceReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

// flakyJournal fails its first `failures` appends, then writes to the store.
type flakyJournal struct {
	*memory.Store
	failures int
	calls    int
}

func (f *flakyJournal) Append(ctx context.Context, e domain.CallEvent) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("scylla down")
	}
	return f.Store.Append(ctx, e)
}

func encode(t *testing.T, offset int64, e domain.CallEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(queue.NewEventMessage(e))
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestRunAppendsAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	lead := domain.Lead{ID: "7", Name: "Ana", Phone: "+34600111222", Status: domain.LeadStatusCalling}
	event := domain.NewCallEvent(domain.CallEventDispatched, lead, time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC))
	event.ProviderCallID = "call-1"

	reader := &sliceReader{
		msgs:   []kafka.Message{encode(t, 1, event), {Offset: 2, Value: []byte("not json")}},
		cancel: cancel,
	}
	store := memory.NewStore()

	err := New(reader, store, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, reader.closed)
	assert.Equal(t, []int64{1, 2}, reader.committed)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, "call-1", events[0].ProviderCallID)
}

func TestRunRetriesFailedWriteBeforeMovingOn(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	first := domain.NewCallEvent(domain.CallEventSkipped, domain.Lead{ID: "1"}, time.Now())
	second := domain.NewCallEvent(domain.CallEventSkipped, domain.Lead{ID: "2"}, time.Now())
	reader := &sliceReader{msgs: []kafka.Message{encode(t, 5, first), encode(t, 6, second)}, cancel: cancel}
	journal := &flakyJournal{Store: memory.NewStore(), failures: 2}

	var waits []time.Duration
	worker := New(reader, journal, nil).WithSleeper(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})

	err := worker.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{5, 6}, reader.committed)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)

	events := journal.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].LeadID)
	assert.Equal(t, "2", events[1].LeadID)
}

func TestRunStopsOnCancelWithoutCommittingFailedWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	first := domain.NewCallEvent(domain.CallEventSkipped, domain.Lead{ID: "1"}, time.Now())
	second := domain.NewCallEvent(domain.CallEventSkipped, domain.Lead{ID: "2"}, time.Now())
	reader := &sliceReader{msgs: []kafka.Message{encode(t, 5, first), encode(t, 6, second)}, cancel: cancel}
	journal := &flakyJournal{Store: memory.NewStore(), failures: 1000}

	sleeps := 0
	worker := New(reader, journal, nil).WithSleeper(func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 3 {
			cancel()
		}
		return ctx.Err()
	})

	err := worker.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.committed)
	assert.Equal(t, 3, journal.calls)
	assert.Len(t, reader.msgs, 1, "later messages must not be fetched past a failed write")
	assert.True(t, reader.closed)
}

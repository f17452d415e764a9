package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aridsondez/queue-engine/internal/metrics"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store"
	"github.com/aridsondez/queue-engine/internal/queue/store/memory"
)

type failingStore struct{ err error }

func (f failingStore) Push(context.Context, string, string, int) error { return f.err }
func (f failingStore) Pull(context.Context, string) (*queue.Message, error) {
	return nil, f.err
}
func (f failingStore) Delete(context.Context, string, string) error { return f.err }
func (f failingStore) Purge(context.Context, string) error          { return f.err }

func TestInstrumented_CountsOperations(t *testing.T) {
	s := store.Instrument(memory.New(memory.Options{}), nil)
	ctx := context.Background()
	const q = "https://host/1/instrumented-counts"
	const label = "instrumented-counts"

	require.NoError(t, s.Push(ctx, q, "a", 1))
	msg, err := s.Pull(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, msg)
	empty, err := s.Pull(ctx, q)
	require.NoError(t, err)
	assert.Nil(t, empty)
	require.NoError(t, s.Delete(ctx, q, msg.ReceiptID))
	require.NoError(t, s.Purge(ctx, q))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesPushed.WithLabelValues(label)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesPulled.WithLabelValues(label)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmptyPulls.WithLabelValues(label)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeleteCalls.WithLabelValues(label)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueuesPurged.WithLabelValues(label)))
}

func TestInstrumented_PassesErrorsThrough(t *testing.T) {
	boom := errors.New("disk on fire")
	s := store.Instrument(failingStore{err: boom}, nil)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.OperationErrors.WithLabelValues("pull"))

	assert.ErrorIs(t, s.Push(ctx, "q", "a", 0), boom)
	_, err := s.Pull(ctx, "q")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Delete(ctx, "q", "r"), boom)
	assert.ErrorIs(t, s.Purge(ctx, "q"), boom)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OperationErrors.WithLabelValues("pull")))
}

func TestInstrumented_Unwrap(t *testing.T) {
	m := memory.New(memory.Options{})
	s := store.Instrument(m, nil)
	assert.Same(t, m, s.Unwrap())
}

func TestInstrumented_DeleteCallsCountUnmatchedReceipts(t *testing.T) {
	s := store.Instrument(memory.New(memory.Options{}), nil)
	ctx := context.Background()
	const q = "instrumented-unmatched"

	require.NoError(t, s.Push(ctx, q, "a", 0))
	require.NoError(t, s.Delete(ctx, q, "no-such-receipt"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeleteCalls.WithLabelValues(q)))

	// The call was counted, but the message is still there.
	msg, err := s.Pull(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "a", msg.Body)
}

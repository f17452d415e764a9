package worker

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aridsondez/queue-engine/internal/api"
	"github.com/aridsondez/queue-engine/internal/queue/store/memory"
	"github.com/aridsondez/queue-engine/pkg/client"
)

func newTestSource(t *testing.T, visibility time.Duration) *client.Client {
	t.Helper()
	ts := httptest.NewServer(api.NewHandler(memory.New(memory.Options{VisibilityTimeout: visibility}), nil))
	t.Cleanup(ts.Close)
	return client.NewClient(ts.URL)
}

func TestRun_NoHandlers(t *testing.T) {
	w := New(Config{BaseURL: "http://unused"})
	assert.Error(t, w.Run(context.Background()))
}

func TestWorker_ProcessesAndDeletes(t *testing.T) {
	src := newTestSource(t, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, src.Push(ctx, "orders", "a", 1))
	require.NoError(t, src.Push(ctx, "orders", "b", 2))

	var mu sync.Mutex
	var got []string
	w := New(Config{Source: src, PollDelay: 10 * time.Millisecond})
	w.Handle("orders", func(_ context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.Body)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	require.NoError(t, w.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b", "a"}, got)

	// Both were acknowledged, so nothing comes back.
	msg, err := src.Pull(context.Background(), "orders")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestWorker_FailedMessageIsRedelivered(t *testing.T) {
	src := newTestSource(t, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, src.Push(ctx, "flaky", "job", 0))

	var mu sync.Mutex
	attempts := 0
	w := New(Config{Source: src, PollDelay: 20 * time.Millisecond, Visibility: time.Second})
	w.Handle("flaky", func(_ context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		if attempts == 2 {
			panic("still broken")
		}
		cancel()
		return nil
	})

	require.NoError(t, w.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

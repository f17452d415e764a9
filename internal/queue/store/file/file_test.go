package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aridsondez/queue-engine/internal/queue"
)

const queueURL = "https://sqs.ap-1.amazonaws.com/007/MyQueue"

var epoch = time.UnixMilli(1_700_000_000_000)

func newTestStore(t *testing.T, mutate ...func(*Options)) (*Store, *queue.ManualClock, string) {
	t.Helper()
	dir := t.TempDir()
	clock := queue.NewManualClock(epoch)
	opts := Options{
		Dir:         dir,
		Clock:       clock,
		LockBackoff: time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s, clock, dir
}

func readLog(t *testing.T, dir, name string) []string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, name, logName))
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}

func TestPushThenPull(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	body := `{"name":"John","age":30,"cars": {"car1":"Ford","car2":"BMW"}}`
	require.NoError(t, s.Push(ctx, queueURL, body, 1))

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, body, msg.Body)
	assert.NotEmpty(t, msg.ReceiptID)
}

func TestPullEmptyQueue(t *testing.T) {
	s, _, _ := newTestStore(t)

	msg, err := s.Pull(context.Background(), queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDoublePull(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "Message A.", 1))
	_, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDeleteIsPermanent(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "Message A.", 1))
	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.NoError(t, s.Delete(ctx, queueURL, msg.ReceiptID))

	clock.Advance(DefaultVisibilityTimeout + time.Millisecond)
	msg, err = s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestPullOrderIgnoresPriority(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	bodies := []string{"Test msg 1", "Test msg 2", "Test Message 3."}
	priorities := []int{1, 10, 5}
	for i, b := range bodies {
		require.NoError(t, s.Push(ctx, queueURL, b, priorities[i]))
	}

	for _, want := range bodies {
		msg, err := s.Pull(ctx, queueURL)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, want, msg.Body)
	}
}

func TestRedeliveryAfterTimeoutKeepsReceipt(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "X", 1))
	first, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, first)

	clock.Advance(DefaultVisibilityTimeout + time.Millisecond)

	second, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "X", second.Body)
	assert.Equal(t, first.ReceiptID, second.ReceiptID)
}

func TestInvisibleUntilDeadline(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "X", 1))
	_, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)

	clock.Advance(DefaultVisibilityTimeout - time.Millisecond)
	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg, "pulled before the visibility deadline")

	clock.Advance(time.Millisecond) // now == visibleFrom
	msg, err = s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "X", msg.Body)
}

func TestPullUpdatesRecordInPlace(t *testing.T) {
	s, clock, dir := newTestStore(t, func(o *Options) { o.VisibilityTimeout = 10 * time.Second })
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "first", 3))
	require.NoError(t, s.Push(ctx, queueURL, "second", 4))

	_, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)

	lines := readLog(t, dir, "MyQueue")
	require.Len(t, lines, 2)

	first, ok := s.codec.Decode(lines[0])
	require.True(t, ok)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, clock.Now().Add(10*time.Second).UnixMilli(), first.VisibleFrom)
	assert.Equal(t, 3, first.Priority)

	second, ok := s.codec.Decode(lines[1])
	require.True(t, ok)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, "second", second.Body)
}

func TestUnrelatedQueue(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "https://host/1/ys", "Y", 1))

	msg, err := s.Pull(ctx, "https://host/1/other")
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = s.Pull(ctx, "https://host/1/ys")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Y", msg.Body)
}

func TestPurge(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "a", 1))
	require.NoError(t, s.Push(ctx, queueURL, "b", 1))
	require.NoError(t, s.Purge(ctx, queueURL))

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)

	// Purging an empty or unknown queue is fine too.
	require.NoError(t, s.Purge(ctx, queueURL))
	require.NoError(t, s.Purge(ctx, "never-used"))
}

func TestMalformedLinesPassThrough(t *testing.T) {
	s, _, dir := newTestStore(t)
	ctx := context.Background()

	qdir := filepath.Join(dir, "MyQueue")
	require.NoError(t, os.MkdirAll(qdir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(qdir, logName), []byte("not a record\n\n"), 0o644))

	require.NoError(t, s.Push(ctx, queueURL, "real", 1))

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "real", msg.Body)

	require.NoError(t, s.Delete(ctx, queueURL, msg.ReceiptID))

	lines := readLog(t, dir, "MyQueue")
	assert.Equal(t, []string{"not a record", ""}, lines)
}

func TestPushAfterTornAppendStartsNewLine(t *testing.T) {
	s, _, dir := newTestStore(t)
	ctx := context.Background()

	qdir := filepath.Join(dir, "MyQueue")
	require.NoError(t, os.MkdirAll(qdir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(qdir, logName), []byte("0:17000"), 0o644))

	require.NoError(t, s.Push(ctx, queueURL, "after crash", 1))

	lines := readLog(t, dir, "MyQueue")
	require.Len(t, lines, 2)
	assert.Equal(t, "0:17000", lines[0])

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "after crash", msg.Body)
}

func TestNoVisibleRecordLeavesLogUntouched(t *testing.T) {
	s, _, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "a", 1))
	_, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)

	logPath := filepath.Join(dir, "MyQueue", logName)
	before, err := os.ReadFile(logPath)
	require.NoError(t, err)

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)
	require.NoError(t, s.Delete(ctx, queueURL, "no-such-receipt"))

	after, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNoTempFilesOrLockLeftBehind(t *testing.T) {
	s, _, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "a", 1))
	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	_, err = s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, queueURL, msg.ReceiptID))
	require.NoError(t, s.Delete(ctx, queueURL, msg.ReceiptID))

	entries, err := os.ReadDir(filepath.Join(dir, "MyQueue"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{logName}, names)
}

func TestDeletePolicyAfterTimeout(t *testing.T) {
	s, clock, _ := newTestStore(t, func(o *Options) { o.DeletePolicy = DeletePolicyAfterTimeout })
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "a", 1))
	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)

	// Still in flight: the receipt is not accepted yet.
	require.NoError(t, s.Delete(ctx, queueURL, msg.ReceiptID))
	clock.Advance(DefaultVisibilityTimeout)

	require.NoError(t, s.Delete(ctx, queueURL, msg.ReceiptID))
	again, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestDeletePolicyAnyTimeBeforePull(t *testing.T) {
	s, _, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "a", 1))
	rec, ok := s.codec.Decode(readLog(t, dir, "MyQueue")[0])
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, queueURL, rec.ReceiptID))
	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestValidation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Push(ctx, "", "a", 1), queue.ErrEmptyQueue)
	assert.ErrorIs(t, s.Push(ctx, queueURL, "", 1), queue.ErrEmptyBody)
	assert.ErrorIs(t, s.Push(ctx, queueURL, "two\nlines", 1), queue.ErrInvalidBody)
	assert.ErrorIs(t, s.Delete(ctx, queueURL, ""), queue.ErrEmptyReceipt)

	_, err := s.Pull(ctx, "")
	assert.ErrorIs(t, err, queue.ErrEmptyQueue)
}

func TestCustomDelimiter(t *testing.T) {
	s, _, dir := newTestStore(t, func(o *Options) { o.Delimiter = "|" })
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, queueURL, "a|b:c", 2))
	line := readLog(t, dir, "MyQueue")[0]
	assert.True(t, strings.HasPrefix(line, fmt.Sprintf("0|%d|", epoch.UnixMilli())), line)
	assert.True(t, strings.HasSuffix(line, "|2|a|b:c"), line)

	msg, err := s.Pull(ctx, queueURL)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "a|b:c", msg.Body)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Dir: t.TempDir(), Delimiter: "-"})
	assert.Error(t, err)
}

func TestIOFailureReleasesLock(t *testing.T) {
	s, _, dir := newTestStore(t)
	ctx := context.Background()

	// A directory where the log should be makes every read and append fail.
	qdir := filepath.Join(dir, "MyQueue")
	require.NoError(t, os.MkdirAll(filepath.Join(qdir, logName), 0o755))

	assert.Error(t, s.Push(ctx, queueURL, "a", 1))
	_, err := s.Pull(ctx, queueURL)
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(qdir, lockName))
	assert.True(t, os.IsNotExist(err), "lock directory left behind")
}

func TestHeldLockBlocksUntilReleased(t *testing.T) {
	s, _, dir := newTestStore(t)

	qdir := filepath.Join(dir, "MyQueue")
	require.NoError(t, os.MkdirAll(filepath.Join(qdir, lockName), 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Push(ctx, queueURL, "a", 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- s.Push(context.Background(), queueURL, "b", 1) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.Remove(filepath.Join(qdir, lockName)))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("push never acquired the released lock")
	}

	lines := readLog(t, dir, "MyQueue")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], ":b"))
}

func TestConcurrentStoresShareDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := New(Options{Dir: dir, LockBackoff: time.Millisecond})
	require.NoError(t, err)
	b, err := New(Options{Dir: dir, LockBackoff: time.Millisecond})
	require.NoError(t, err)
	stores := []*Store{a, b}

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, stores[i%2].Push(ctx, queueURL, fmt.Sprintf("m-%d", i), 0))
		}(i)
	}
	wg.Wait()

	var mu sync.Mutex
	seen := make(map[string]string)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := stores[i%2].Pull(ctx, queueURL)
			if !assert.NoError(t, err) || !assert.NotNil(t, msg) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := seen[msg.Body]
			assert.False(t, dup, "delivered twice: %s", msg.Body)
			seen[msg.Body] = msg.ReceiptID
		}(i)
	}
	wg.Wait()

	assert.Len(t, seen, n)
	msg, err := a.Pull(ctx, queueURL)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeletePolicyAnyTime, p)

	p, err = ParseDeletePolicy("after-timeout")
	require.NoError(t, err)
	assert.Equal(t, DeletePolicyAfterTimeout, p)
	assert.Equal(t, "after-timeout", p.String())

	_, err = ParseDeletePolicy("sometimes")
	assert.Error(t, err)
}

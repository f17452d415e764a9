// Package file implements the durable queue backend: one append-only record
// log per queue directory, guarded by a directory-creation lock and rewritten
// through a temp file plus atomic rename on every pull, delete and purge.
package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store"
)

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

const (
	logName                  = "messages"
	DefaultVisibilityTimeout = 30 * time.Second
)

// DeletePolicy decides when a receipt may acknowledge its record.
type DeletePolicy int

const (
	// DeletePolicyAnyTime accepts a matching receipt whether or not the
	// record is still in flight.
	DeletePolicyAnyTime DeletePolicy = iota
	// DeletePolicyAfterTimeout only accepts a matching receipt once the
	// record's visibility deadline has passed.
	DeletePolicyAfterTimeout
)

func (p DeletePolicy) String() string {
	switch p {
	case DeletePolicyAfterTimeout:
		return "after-timeout"
	default:
		return "any-time"
	}
}

// ParseDeletePolicy accepts "any-time" (or empty) and "after-timeout".
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any-time", "anytime":
		return DeletePolicyAnyTime, nil
	case "after-timeout":
		return DeletePolicyAfterTimeout, nil
	default:
		return DeletePolicyAnyTime, fmt.Errorf("unknown delete policy %q", s)
	}
}

type Options struct {
	Dir               string
	Delimiter         string
	VisibilityTimeout time.Duration
	DeletePolicy      DeletePolicy
	Clock             queue.Clock
	Logger            logging.Logger
	LockBackoff       time.Duration
}

type Store struct {
	dir          string
	codec        queue.Codec
	visibility   time.Duration
	deletePolicy DeletePolicy
	clock        queue.Clock
	log          logging.Logger
	lockBackoff  time.Duration
}

// New creates the root directory if needed. Queue directories are created
// on first use.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("file store: queue directory is required")
	}
	codec, err := queue.NewCodec(opts.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.Clock == nil {
		opts.Clock = queue.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	if opts.LockBackoff <= 0 {
		opts.LockBackoff = defaultLockBackoff
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", opts.Dir, err)
	}

	return &Store{
		dir:          opts.Dir,
		codec:        codec,
		visibility:   opts.VisibilityTimeout,
		deletePolicy: opts.DeletePolicy,
		clock:        opts.Clock,
		log:          opts.Logger,
		lockBackoff:  opts.LockBackoff,
	}, nil
}

// Push appends one record line to the queue's log.
func (s *Store) Push(ctx context.Context, queueID, body string, priority int) (err error) {
	name, err := queue.ValidatePush(queueID, body)
	if err != nil {
		return err
	}
	if strings.ContainsAny(body, "\r\n") {
		return queue.ErrInvalidBody
	}

	dir, release, err := s.lock(ctx, name)
	if err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}
	defer s.unlock(name, release, &err)

	rec := queue.Record{
		Attempts:    0,
		VisibleFrom: s.now(),
		ReceiptID:   queue.NewReceiptID(),
		Priority:    priority,
		Body:        body,
	}

	f, err := os.OpenFile(filepath.Join(dir, logName), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("push %s: open log: %w", name, err)
	}
	line := s.codec.Encode(rec) + "\n"
	torn, err := endsMidLine(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("push %s: inspect log: %w", name, err)
	}
	if torn {
		// A previous append stopped short; keep the new record on its own line.
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("push %s: write log: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("push %s: sync log: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("push %s: close log: %w", name, err)
	}

	s.log.Debug("message pushed", logging.F("queue", name), logging.F("receipt", rec.ReceiptID))
	return nil
}

// Pull hands out the first visible record in storage order. Priority is
// stored but never consulted here.
func (s *Store) Pull(ctx context.Context, queueID string) (msg *queue.Message, err error) {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return nil, err
	}

	dir, release, err := s.lock(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", name, err)
	}
	defer func() {
		s.unlock(name, release, &err)
		if err != nil {
			msg = nil
		}
	}()

	now := s.now()
	var selected *queue.Message
	err = s.rewrite(dir, func(line string) (string, bool, bool) {
		if selected != nil {
			return line, false, false
		}
		rec, ok := s.codec.Decode(line)
		if !ok || !rec.VisibleAt(now) {
			return line, false, false
		}
		rec.Attempts++
		rec.VisibleFrom = now + s.visibility.Milliseconds()
		selected = &queue.Message{Body: rec.Body, ReceiptID: rec.ReceiptID}
		return s.codec.Encode(rec), false, true
	})
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", name, err)
	}

	if selected != nil {
		s.log.Debug("message pulled", logging.F("queue", name), logging.F("receipt", selected.ReceiptID))
	}
	return selected, nil
}

// Delete drops the record carrying receiptID. Eligibility follows the
// store's DeletePolicy; no match leaves the log untouched.
func (s *Store) Delete(ctx context.Context, queueID, receiptID string) (err error) {
	name, err := queue.ValidateReceipt(queueID, receiptID)
	if err != nil {
		return err
	}

	dir, release, err := s.lock(ctx, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	defer s.unlock(name, release, &err)

	now := s.now()
	matched := false
	err = s.rewrite(dir, func(line string) (string, bool, bool) {
		if matched {
			return line, false, false
		}
		rec, ok := s.codec.Decode(line)
		if !ok || rec.ReceiptID != receiptID {
			return line, false, false
		}
		if s.deletePolicy == DeletePolicyAfterTimeout && !rec.VisibleAt(now) {
			return line, false, false
		}
		matched = true
		return "", true, true
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}

	if !matched {
		s.log.Debug("delete matched no record", logging.F("queue", name), logging.F("receipt", receiptID))
	}
	return nil
}

// Purge atomically replaces the log with an empty one.
func (s *Store) Purge(ctx context.Context, queueID string) (err error) {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return err
	}

	dir, release, err := s.lock(ctx, name)
	if err != nil {
		return fmt.Errorf("purge %s: %w", name, err)
	}
	defer s.unlock(name, release, &err)

	err = s.rewrite(dir, func(string) (string, bool, bool) {
		return "", true, true
	})
	if err != nil {
		return fmt.Errorf("purge %s: %w", name, err)
	}
	s.log.Info("queue purged", logging.F("queue", name))
	return nil
}

// endsMidLine reports whether f is non-empty and its last byte is not a newline.
func endsMidLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (s *Store) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *Store) lock(ctx context.Context, name string) (string, func() error, error) {
	dir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create queue directory: %w", err)
	}
	release, err := acquireLock(ctx, filepath.Join(dir, lockName), s.lockBackoff)
	if err != nil {
		return "", nil, err
	}
	return dir, release, nil
}

func (s *Store) unlock(name string, release func() error, errp *error) {
	if rerr := release(); rerr != nil {
		s.log.Error("lock release failed", logging.F("queue", name), logging.Err(rerr))
		*errp = errors.Join(*errp, rerr)
	}
}

// lineFunc maps one log line to its replacement. drop omits the line from
// the rewritten log; changed marks the log as modified.
type lineFunc func(line string) (out string, drop, changed bool)

// rewrite streams the queue's log through fn into a temp file next to it.
// The temp file replaces the log only if fn reported a change; otherwise it
// is removed and the log is left as it was. A missing log is an empty queue.
func (s *Store) rewrite(dir string, fn lineFunc) error {
	logPath := filepath.Join(dir, logName)
	in, err := os.Open(logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, "temp-*.msg")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	r := bufio.NewReader(in)
	w := bufio.NewWriter(tmp)
	changed := false
	for {
		line, rerr := r.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return fmt.Errorf("read log: %w", rerr)
		}
		if line != "" {
			out, drop, c := fn(strings.TrimSuffix(line, "\n"))
			changed = changed || c
			if !drop {
				if _, err := w.WriteString(out + "\n"); err != nil {
					return fmt.Errorf("write temp file: %w", err)
				}
			}
		}
		if rerr != nil {
			break
		}
	}
	if !changed {
		return nil
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	// Windows refuses to replace a file that is still open.
	_ = in.Close()
	if err := os.Rename(tmpName, logPath); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	committed = true
	return nil
}

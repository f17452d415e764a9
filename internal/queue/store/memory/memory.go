// Package memory implements a non-durable queue backend for single-process
// use and tests. Each queue is a slice kept in priority order (higher first,
// then arrival order) and guarded by its own mutex.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store"
)

var _ store.Store = (*Store)(nil)

const DefaultVisibilityTimeout = 30 * time.Second

type entry struct {
	body      string
	priority  int
	arrivedAt int64 // epoch millis
	seq       uint64

	attempts    int
	receiptID   string
	visibleFrom int64
}

// Visible means never delivered, or the last delivery's deadline has passed.
func (e *entry) visibleAt(now int64) bool {
	return e.attempts == 0 || now >= e.visibleFrom
}

func (e *entry) inFlightAt(now int64) bool {
	return e.attempts > 0 && now < e.visibleFrom
}

// before orders entries: higher priority first, then FCFS.
func (e *entry) before(o *entry) bool {
	if e.priority != o.priority {
		return e.priority > o.priority
	}
	if e.arrivedAt != o.arrivedAt {
		return e.arrivedAt < o.arrivedAt
	}
	return e.seq < o.seq
}

type memQueue struct {
	mu      sync.Mutex
	entries []*entry
	nextSeq uint64
}

type Options struct {
	VisibilityTimeout time.Duration
	Clock             queue.Clock
	Logger            logging.Logger
}

type Store struct {
	mu     sync.RWMutex
	queues map[string]*memQueue

	visibility time.Duration
	clock      queue.Clock
	log        logging.Logger
}

func New(opts Options) *Store {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.Clock == nil {
		opts.Clock = queue.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	return &Store{
		queues:     make(map[string]*memQueue),
		visibility: opts.VisibilityTimeout,
		clock:      opts.Clock,
		log:        opts.Logger,
	}
}

func (s *Store) Push(_ context.Context, queueID, body string, priority int) error {
	name, err := queue.ValidatePush(queueID, body)
	if err != nil {
		return err
	}

	q := s.queue(name, true)
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &entry{
		body:      body,
		priority:  priority,
		arrivedAt: s.now(),
		seq:       q.nextSeq,
	}
	q.nextSeq++

	i := sort.Search(len(q.entries), func(i int) bool { return e.before(q.entries[i]) })
	q.entries = slices.Insert(q.entries, i, e)

	s.log.Debug("message pushed", logging.F("queue", name), logging.F("priority", priority))
	return nil
}

// Pull delivers the first visible entry in container order. The entry stays
// in place, hidden until its deadline, so Delete can still find it and a
// later Pull can redeliver it.
func (s *Store) Pull(_ context.Context, queueID string) (*queue.Message, error) {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return nil, err
	}

	q := s.queue(name, false)
	if q == nil {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := s.now()
	for _, e := range q.entries {
		if !e.visibleAt(now) {
			continue
		}
		e.attempts++
		e.receiptID = queue.NewReceiptID()
		e.visibleFrom = now + s.visibility.Milliseconds()

		s.log.Debug("message pulled", logging.F("queue", name), logging.F("receipt", e.receiptID), logging.F("attempts", e.attempts))
		return &queue.Message{Body: e.body, ReceiptID: e.receiptID}, nil
	}
	return nil, nil
}

// Delete removes the in-flight entry holding receiptID. A receipt whose
// deadline already passed is stale and matches nothing.
func (s *Store) Delete(_ context.Context, queueID, receiptID string) error {
	name, err := queue.ValidateReceipt(queueID, receiptID)
	if err != nil {
		return err
	}

	q := s.queue(name, false)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := s.now()
	for i, e := range q.entries {
		if e.receiptID == receiptID && e.inFlightAt(now) {
			q.entries = slices.Delete(q.entries, i, i+1)
			return nil
		}
	}
	s.log.Debug("delete matched no record", logging.F("queue", name), logging.F("receipt", receiptID))
	return nil
}

func (s *Store) Purge(_ context.Context, queueID string) error {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return err
	}

	q := s.queue(name, false)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()

	s.log.Info("queue purged", logging.F("queue", name))
	return nil
}

// queue looks up name, registering an empty queue when create is set.
func (s *Store) queue(name string, create bool) *memQueue {
	s.mu.RLock()
	q, ok := s.queues[name]
	s.mu.RUnlock()
	if ok || !create {
		return q
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[name]; ok {
		return q
	}
	q = &memQueue{}
	s.queues[name] = q
	return q
}

func (s *Store) now() int64 {
	return s.clock.Now().UnixMilli()
}

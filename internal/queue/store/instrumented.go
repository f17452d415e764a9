package store

import (
	"context"
	"time"

	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/metrics"
	"github.com/aridsondez/queue-engine/internal/queue"
)

// Instrumented records Prometheus metrics and logs failures for every call
// on the wrapped Store.
type Instrumented struct {
	next Store
	log  logging.Logger
}

var _ Store = (*Instrumented)(nil)

func Instrument(next Store, log logging.Logger) *Instrumented {
	if log == nil {
		log = logging.Nop{}
	}
	return &Instrumented{next: next, log: log}
}

// Unwrap returns the backend being instrumented.
func (s *Instrumented) Unwrap() Store { return s.next }

func (s *Instrumented) Push(ctx context.Context, queueID, body string, priority int) error {
	defer observe("push", time.Now())
	if err := s.next.Push(ctx, queueID, body, priority); err != nil {
		s.fail("push", queueID, err)
		return err
	}
	metrics.MessagesPushed.WithLabelValues(label(queueID)).Inc()
	return nil
}

func (s *Instrumented) Pull(ctx context.Context, queueID string) (*queue.Message, error) {
	defer observe("pull", time.Now())
	msg, err := s.next.Pull(ctx, queueID)
	if err != nil {
		s.fail("pull", queueID, err)
		return nil, err
	}
	if msg == nil {
		metrics.EmptyPulls.WithLabelValues(label(queueID)).Inc()
		return nil, nil
	}
	metrics.MessagesPulled.WithLabelValues(label(queueID)).Inc()
	return msg, nil
}

func (s *Instrumented) Delete(ctx context.Context, queueID, receiptID string) error {
	defer observe("delete", time.Now())
	if err := s.next.Delete(ctx, queueID, receiptID); err != nil {
		s.fail("delete", queueID, err)
		return err
	}
	metrics.DeleteCalls.WithLabelValues(label(queueID)).Inc()
	return nil
}

func (s *Instrumented) Purge(ctx context.Context, queueID string) error {
	defer observe("purge", time.Now())
	if err := s.next.Purge(ctx, queueID); err != nil {
		s.fail("purge", queueID, err)
		return err
	}
	metrics.QueuesPurged.WithLabelValues(label(queueID)).Inc()
	return nil
}

func (s *Instrumented) fail(op, queueID string, err error) {
	metrics.OperationErrors.WithLabelValues(op).Inc()
	s.log.Warn("queue operation failed",
		logging.F("op", op),
		logging.F("queue", queueID),
		logging.Err(err),
	)
}

func observe(op string, start time.Time) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// label keeps metric cardinality to queue names rather than full locators.
func label(queueID string) string {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return "invalid"
	}
	return name
}

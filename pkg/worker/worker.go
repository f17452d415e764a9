package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aridsondez/queue-engine/pkg/client"
)

// HandlerFunc processes a message and returns an error if processing failed.
// Returning nil means success (message will be deleted).
// Returning an error means failure (message reappears after its visibility timeout).
type HandlerFunc func(ctx context.Context, msg *Message) error

// Message is a delivered message plus the queue it came from.
type Message struct {
	Body    string
	Receipt string
	Queue   string
}

// Source is the queue contract the worker consumes. *client.Client satisfies it.
type Source interface {
	Pull(ctx context.Context, queue string) (*client.Message, error)
	Delete(ctx context.Context, queue, receipt string) error
}

// Worker manages message processing from queues
type Worker struct {
	source     Source
	handlers   map[string]HandlerFunc
	pollDelay  time.Duration
	batchSize  int
	visibility time.Duration
}

// Config for creating a new worker
type Config struct {
	BaseURL    string        // queue server URL, used when Source is nil
	Source     Source        // optional; overrides BaseURL
	PollDelay  time.Duration // Time between polling attempts (default: 1s)
	BatchSize  int           // Max messages pulled per poll (default: 10)
	Visibility time.Duration // Server visibility timeout, bounds handler time (default: 30s)
}

// New creates a new Worker with the given configuration
func New(cfg Config) *Worker {
	if cfg.PollDelay == 0 {
		cfg.PollDelay = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.Visibility == 0 {
		cfg.Visibility = 30 * time.Second
	}
	if cfg.Source == nil {
		cfg.Source = client.NewClient(cfg.BaseURL)
	}

	return &Worker{
		source:     cfg.Source,
		handlers:   make(map[string]HandlerFunc),
		pollDelay:  cfg.PollDelay,
		batchSize:  cfg.BatchSize,
		visibility: cfg.Visibility,
	}
}

// Handle registers a handler function for a specific queue
func (w *Worker) Handle(queue string, handler HandlerFunc) {
	w.handlers[queue] = handler
	log.Printf("Registered handler for queue: %s", queue)
}

// Run starts the worker and blocks until context is cancelled and every
// poller has returned.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	log.Printf("Worker starting with %d queue(s)", len(w.handlers))

	var wg sync.WaitGroup
	for queue, handler := range w.handlers {
		wg.Add(1)
		go func(queue string, handler HandlerFunc) {
			defer wg.Done()
			w.pollQueue(ctx, queue, handler)
		}(queue, handler)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
	wg.Wait()
	return nil
}

// pollQueue continuously polls a queue and processes messages
func (w *Worker) pollQueue(ctx context.Context, queue string, handler HandlerFunc) {
	ticker := time.NewTicker(w.pollDelay)
	defer ticker.Stop()

	log.Printf("Started polling queue: %s", queue)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Stopped polling queue: %s", queue)
			return

		case <-ticker.C:
			w.drain(ctx, queue, handler)
		}
	}
}

// drain pulls up to batchSize messages, stopping early when the queue is empty.
func (w *Worker) drain(ctx context.Context, queue string, handler HandlerFunc) {
	for i := 0; i < w.batchSize && ctx.Err() == nil; i++ {
		m, err := w.source.Pull(ctx, queue)
		if err != nil {
			log.Printf("Error pulling from %s: %v", queue, err)
			return
		}
		if m == nil {
			return
		}
		w.processMessage(ctx, &Message{Body: m.Body, Receipt: m.Receipt, Queue: queue}, handler)
	}
}

// processMessage handles a single message with error recovery
func (w *Worker) processMessage(ctx context.Context, msg *Message, handler HandlerFunc) {
	// Leave headroom to delete before the message becomes visible again.
	budget := w.visibility - w.visibility/6
	handlerCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC processing message %s from %s: %v (will be redelivered)",
				msg.Receipt, msg.Queue, r)
		}
	}()

	if err := handler(handlerCtx, msg); err != nil {
		log.Printf("Error processing message %s from %s: %v", msg.Receipt, msg.Queue, err)
		return
	}

	// The work is done; acknowledge it even if shutdown has started.
	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer ackCancel()

	if err := w.source.Delete(ackCtx, msg.Queue, msg.Receipt); err != nil {
		log.Printf("Error deleting message %s: %v", msg.Receipt, err)
		return
	}

	log.Printf("Processed message %s from %s", msg.Receipt, msg.Queue)
}

package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aridsondez/queue-engine/internal/metrics"
)

const (
	lockName           = ".lock"
	defaultLockBackoff = 50 * time.Millisecond
)

// acquireLock takes the directory lock at path by creating it. Creation fails
// while another holder owns it, so we sleep backoff and try again until it
// succeeds or ctx is done. The returned func removes the directory.
func acquireLock(ctx context.Context, path string, backoff time.Duration) (func() error, error) {
	start := time.Now()
	for {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			metrics.LockWait.Observe(time.Since(start).Seconds())
			return func() error {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("release lock %s: %w", path, err)
				}
				return nil
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", path, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", path, ctx.Err())
		case <-timer.C:
		}
	}
}

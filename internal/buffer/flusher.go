package buffer

import (
	"context"
	"sync"
	"time"
)

// Flusher drives time-based flushes from one dedicated goroutine. Firing is
// independent of the capacity path and may race with it; correctness rests
// entirely on the buffer's atomic swap, not on excluding the other trigger.
type Flusher struct {
	buf      *Buffer
	interval time.Duration

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewFlusher builds a flusher for buf. Start must be called before it fires.
func NewFlusher(buf *Buffer, interval time.Duration) *Flusher {
	return &Flusher{
		buf:      buf,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the timer goroutine. A non-positive interval disables
// time-based flushing entirely.
func (f *Flusher) Start() {
	if f.interval <= 0 {
		return
	}
	f.wg.Add(1)
	go f.run()
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			// Errors are already reported and counted by the buffer; the
			// timer path has no caller to surface them to.
			_ = f.buf.flushWith(context.Background(), "interval")
		}
	}
}

// Stop cancels the timer and waits for the goroutine to exit. Stopping twice
// is safe.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
	})
	f.wg.Wait()
}

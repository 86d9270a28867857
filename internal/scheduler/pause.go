package scheduler

import (
	"context"
	"os"
	"sync"
	"time"
)

// Interrupts routes keyboard interrupts for a run. An interrupt that
// arrives during Pause ends that wait only. Any other interrupt cancels
// the run's context.
type Interrupts struct {
	mu      sync.Mutex
	waiting chan struct{}
	cancel  context.CancelFunc
}

// WatchInterrupts starts routing signals from sig. The returned context is
// cancelled by an interrupt outside a pause, by Stop, or when parent is done.
func WatchInterrupts(parent context.Context, sig <-chan os.Signal) (context.Context, *Interrupts) {
	ctx, cancel := context.WithCancel(parent)
	in := &Interrupts{cancel: cancel}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				in.route()
			}
		}
	}()

	return ctx, in
}

// Stop cancels the run context and ends signal routing
func (in *Interrupts) Stop() {
	if in != nil {
		in.cancel()
	}
}

func (in *Interrupts) route() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.waiting != nil {
		close(in.waiting)
		in.waiting = nil
		return
	}
	in.cancel()
}

// Pause waits for d. It returns true when an interrupt cut the wait short.
// A nil *Interrupts waits on the context alone.
func (in *Interrupts) Pause(ctx context.Context, d time.Duration) bool {
	var interrupted <-chan struct{}
	if in != nil {
		w := make(chan struct{})
		in.mu.Lock()
		in.waiting = w
		in.mu.Unlock()
		defer func() {
			in.mu.Lock()
			if in.waiting == w {
				in.waiting = nil
			}
			in.mu.Unlock()
		}()
		interrupted = w
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	case <-interrupted:
		return true
	}
}

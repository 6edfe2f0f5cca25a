package geolocation

import (
	"context"
	"sync"
	"time"
)

// Source produces position samples for one tracked user.
type Source interface {
	// CurrentPosition returns a single fix or fails with one of the package errors.
	CurrentPosition(ctx context.Context) (Sample, error)
	// Watch streams fixes until ctx ends. The channel is closed afterwards.
	Watch(ctx context.Context) (<-chan Update, error)
}

// Update is one element of a Watch stream: a fix, or a non-fatal error such as a stale fix.
type Update struct {
	Sample Sample
	Err    error
}

// Feed is a Source fed by readings pushed from the owner's device.
type Feed struct {
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	waiters  []chan Reading
	watchers map[chan Reading]struct{}
}

func NewFeed(staleAfter time.Duration) *Feed {
	return &Feed{
		staleAfter: staleAfter,
		now:        time.Now,
		watchers:   map[chan Reading]struct{}{},
	}
}

// Push delivers a reading to pending CurrentPosition calls and to every watcher.
// Slow watchers drop readings instead of blocking the device.
func (f *Feed) Push(r Reading) {
	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	watchers := make([]chan Reading, 0, len(f.watchers))
	for ch := range f.watchers {
		watchers = append(watchers, ch)
	}
	f.mu.Unlock()

	for _, w := range waiters {
		w <- r
	}
	for _, ch := range watchers {
		select {
		case ch <- r:
		default:
		}
	}
}

func (f *Feed) CurrentPosition(ctx context.Context) (Sample, error) {
	wait := make(chan Reading, 1)
	f.mu.Lock()
	f.waiters = append(f.waiters, wait)
	f.mu.Unlock()

	select {
	case r := <-wait:
		if err := r.Err(); err != nil {
			return Sample{}, err
		}
		return r.Sample(f.now()), nil
	case <-ctx.Done():
		f.dropWaiter(wait)
		return Sample{}, ErrTimeout
	}
}

func (f *Feed) dropWaiter(wait chan Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.waiters {
		if w == wait {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

func (f *Feed) Watch(ctx context.Context) (<-chan Update, error) {
	in := make(chan Reading, 32)
	f.mu.Lock()
	f.watchers[in] = struct{}{}
	f.mu.Unlock()

	out := make(chan Update, 32)
	go func() {
		defer close(out)
		defer func() {
			f.mu.Lock()
			delete(f.watchers, in)
			f.mu.Unlock()
		}()

		var stale <-chan time.Time
		var timer *time.Timer
		if f.staleAfter > 0 {
			timer = time.NewTimer(f.staleAfter)
			defer timer.Stop()
			stale = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case r := <-in:
				if timer != nil {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(f.staleAfter)
				}
				u := Update{Err: r.Err()}
				if u.Err == nil {
					u.Sample = r.Sample(f.now())
				}
				if !send(ctx, out, u) {
					return
				}
			case <-stale:
				timer.Reset(f.staleAfter)
				if !send(ctx, out, Update{Err: ErrTimeout}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/middleware"
)

// Sweeper removes expired quarantine files.
type Sweeper interface {
	Reclaim(ctx context.Context, now time.Time) (int, error)
}

// Reclaimer runs a Sweeper on a fixed interval until its context is cancelled.
type Reclaimer struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time

	once sync.Once
	done chan struct{}
}

func NewReclaimer(sweeper Sweeper, interval time.Duration) *Reclaimer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reclaimer{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop once. The first sweep runs immediately.
func (r *Reclaimer) Start(ctx context.Context) {
	r.once.Do(func() {
		go r.loop(ctx)
	})
}

// Done is closed after the loop exits.
func (r *Reclaimer) Done() <-chan struct{} {
	return r.done
}

func (r *Reclaimer) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			middleware.Logger.Info("Quarantine reclaimer stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one sweep. A panic inside the sweep is logged and does not
// stop the loop.
func (r *Reclaimer) RunOnce(ctx context.Context) (removed int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reclaim sweep panicked: %v", rec)
			middleware.Logger.ErrorContext(ctx, "reclaim sweep panicked", slog.Any("panic", rec))
		}
	}()

	removed, err = r.sweeper.Reclaim(ctx, r.now())
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "reclaim sweep failed", slog.String("error", err.Error()))
		return removed, err
	}
	if removed > 0 {
		middleware.Logger.InfoContext(ctx, "reclaimed staged images", slog.Int("count", removed))
	}
	return removed, nil
}

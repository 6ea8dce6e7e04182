package files

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// Sweeper runs the garbage collection sweep on a fixed interval. The
// interval should be well under the retention window so expiry is enforced
// within one tick of the deadline.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper creates a new sweeper
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Start launches the recurring sweep in a background goroutine and returns
// a stop function. Stop blocks until the goroutine has exited, so tests and
// shutdown paths get a clean stop with no sweep in flight.
func (sw *Sweeper) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go sw.run(ctx, done)

	return func() {
		cancel()
		<-done
	}
}

func (sw *Sweeper) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	// Run once on start to reclaim anything that expired while down.
	sw.sweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.sweep()
		}
	}
}

func (sw *Sweeper) sweep() {
	removed, reclaimed, err := sw.svc.Sweep()
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("sweep removed expired files",
			"removed", removed,
			"reclaimed", humanize.IBytes(uint64(reclaimed)),
		)
	}
}

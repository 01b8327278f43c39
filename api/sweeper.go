/*
sweeper.go - Automated missed-reservation sweeper

PURPOSE:
  Periodically runs the missed-reservation sweep over every schedulable
  item: reservations that ended past the configured threshold with no
  recorded usage are flagged missed, which feeds the per-day limit and
  freezes the record.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps each item independently; one failing item does not stop
    the others
  - Each sweep takes the item's mutation lock, so it never races a
    concurrent move or cancel

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 5 minutes)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewMissedSweeper(handler)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: SweepMissed endpoint (manual sweep)
  - reservation/coordinator.go: The sweep implementation
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MissedSweeper handles automated missed-reservation detection.
type MissedSweeper struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool
	Log           *slog.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMissedSweeper creates a new sweeper.
func NewMissedSweeper(handler *Handler) *MissedSweeper {
	return &MissedSweeper{
		Handler:       handler,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		Log:           slog.Default(),
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (ms *MissedSweeper) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		ms.Log.Info("missed sweeper disabled, not starting")
		return
	}

	ms.ticker = time.NewTicker(ms.CheckInterval)
	ms.wg.Add(1)

	go ms.run()

	ms.Log.Info("missed sweeper started", "interval", ms.CheckInterval)
}

// Stop stops the sweeper.
func (ms *MissedSweeper) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		ms.Log.Info("missed sweeper stopped")
	}
}

func (ms *MissedSweeper) run() {
	defer ms.wg.Done()

	// Run immediately on start
	ms.sweepAll()

	for {
		select {
		case <-ms.ticker.C:
			ms.sweepAll()
		case <-ms.stop:
			return
		}
	}
}

func (ms *MissedSweeper) sweepAll() {
	ctx := context.Background()

	for _, tool := range ms.Handler.Site.Tools() {
		missed, err := ms.Handler.Coordinator.SweepMissed(ctx, tool.ID, ms.Handler.Usage)
		if err != nil {
			ms.Log.Error("missed sweep failed", "item", tool.ID, "error", err)
			continue
		}
		if len(missed) > 0 {
			ms.Log.Info("missed sweep flagged reservations", "item", tool.ID, "count", len(missed))
		}
	}
	for _, area := range ms.Handler.Site.Areas() {
		missed, err := ms.Handler.Coordinator.SweepMissed(ctx, area.ID, ms.Handler.Usage)
		if err != nil {
			ms.Log.Error("missed sweep failed", "item", area.ID, "error", err)
			continue
		}
		if len(missed) > 0 {
			ms.Log.Info("missed sweep flagged reservations", "item", area.ID, "count", len(missed))
		}
	}
}

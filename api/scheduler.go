/*
scheduler.go - Automated month-end draft generation

PURPOSE:
  Periodically generates draft payrolls for the most recently closed
  month so the back office starts every cycle with drafts already in
  place instead of kicking off generation by hand.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Once the calendar month rolls over, generates drafts for the
    previous month for every driver with trips in it
  - Generation is idempotent for untouched drafts and skips drivers
    whose payroll has moved past DRAFT, so repeated runs are safe
  - Drivers with missing distance data are logged, not retried blindly;
    fixing the trips and waiting for the next tick (or calling
    generate-all manually) picks them up

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDraftScheduler(aggregator)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateAllPayrolls endpoint (manual generation)
  - payroll/aggregate.go: Aggregator.GenerateAll
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/haulmark/payroll-engine/payroll"
)

// DraftScheduler generates draft payrolls after each month closes.
type DraftScheduler struct {
	Aggregator    *payroll.Aggregator
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDraftScheduler creates a new scheduler.
func NewDraftScheduler(agg *payroll.Aggregator) *DraftScheduler {
	return &DraftScheduler{
		Aggregator:    agg,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ds *DraftScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ds.ticker = time.NewTicker(ds.CheckInterval)
	ds.wg.Add(1)

	go ds.run()

	log.Printf("[Scheduler] Started with check interval: %v", ds.CheckInterval)
}

// Stop stops the scheduler.
func (ds *DraftScheduler) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker != nil {
		ds.ticker.Stop()
		close(ds.stop)
		ds.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ds *DraftScheduler) run() {
	defer ds.wg.Done()

	// Run immediately on start
	ds.checkAndGenerate()

	for {
		select {
		case <-ds.ticker.C:
			ds.checkAndGenerate()
		case <-ds.stop:
			return
		}
	}
}

func (ds *DraftScheduler) checkAndGenerate() {
	ctx := context.Background()

	// The month just closed is the one we draft for.
	period := payroll.PeriodOf(time.Now().UTC()).Previous()

	log.Printf("[Scheduler] Generating drafts for %s", period)

	result, err := ds.Aggregator.GenerateAll(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] Generation for %s failed: %v", period, err)
		return
	}

	log.Printf("[Scheduler] %s: %d drafts generated", period, len(result.Generated))
	if result.Missing != nil {
		for _, d := range result.Missing.Drivers {
			log.Printf("[Scheduler] %s: driver %s blocked, %d trip(s) missing distance",
				period, d.DriverID, len(d.Trips))
		}
	}
}

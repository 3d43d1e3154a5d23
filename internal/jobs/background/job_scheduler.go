package background

import (
	"context"
	"log"
	"sync"
	"time"

	"kazka/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages the periodic sweeps. The sweeps are convenience
// passes: correctness never depends on them because expiry is also
// evaluated lazily on reads.
type JobScheduler struct {
	scheduler gocron.Scheduler
	intentSvc services.IntentService
	rentalSvc services.RentalService
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(intentSvc services.IntentService, rentalSvc services.RentalService) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		intentSvc: intentSvc,
		rentalSvc: rentalSvc,
		jobs:      make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Stale intent sweep - every 5 minutes
	expireJob, err := js.scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(js.expireStaleIntents),
		gocron.WithName("stale-intent-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create stale intent sweep job: %v", err)
	} else {
		js.jobs["stale-intents"] = expireJob
	}

	// Overdue rental sweep - every hour
	overdueJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.sweepOverdueRentals),
		gocron.WithName("overdue-rental-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create overdue rental sweep job: %v", err)
	} else {
		js.jobs["overdue-rentals"] = overdueJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

func (js *JobScheduler) expireStaleIntents() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	expired, err := js.intentSvc.ExpireStale(ctx)
	if err != nil {
		log.Printf("Stale intent sweep failed: %v", err)
		return err
	}
	if expired > 0 {
		log.Printf("Stale intent sweep expired %d intents", expired)
	}
	return nil
}

func (js *JobScheduler) sweepOverdueRentals() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	promoted, err := js.rentalSvc.SweepOverdue(ctx)
	if err != nil {
		log.Printf("Overdue rental sweep failed: %v", err)
		return err
	}
	if promoted > 0 {
		log.Printf("Overdue rental sweep promoted %d rentals", promoted)
	}
	return nil
}

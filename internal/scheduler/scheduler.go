package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/pasture-risk/internal/weather"
)

// Evaluator runs one evaluation cycle for a location.
type Evaluator interface {
	Evaluate(ctx context.Context, loc weather.Location) (weather.Evaluation, error)
}

// Scheduler periodically re-evaluates pasture risk for configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	evaluator Evaluator
	locations []weather.Location
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler.
func New(locations []weather.Location, interval time.Duration, evaluator Evaluator) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		evaluator: evaluator,
		locations: locations,
		interval:  interval,
		timeout:   30 * time.Second,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce evaluates every location concurrently and waits for all of them.
func (s *Scheduler) RunOnce() {
	log.Println("scheduler: running evaluation job")

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			if _, err := s.evaluator.Evaluate(ctx, loc); err != nil {
				log.Printf("scheduler: evaluation failed for %s: %v", loc.Key(), err)
			}
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed evaluation job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

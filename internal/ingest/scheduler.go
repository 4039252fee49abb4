package ingest

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Scheduler re-runs the pipeline on a cron schedule. Runs never overlap: a
// tick that fires while a run is in progress waits for the next slot.
type Scheduler struct {
	pipeline *Pipeline
	expr     *cronexpr.Expression
	logger   *log.Logger
}

// NewScheduler parses the cron expression up front so a bad schedule fails at
// startup, not at the first tick.
func NewScheduler(pipeline *Pipeline, schedule string, logger *log.Logger) (*Scheduler, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Scheduler{pipeline: pipeline, expr: expr, logger: logger}, nil
}

// Run blocks until ctx is cancelled, executing the pipeline at each scheduled
// time. A failing run is logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.expr.Next(time.Now())
		if next.IsZero() {
			s.logger.Printf("schedule has no future runs, stopping")
			return
		}
		s.logger.Printf("next ingestion at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.pipeline.Run(ctx); err != nil {
			s.logger.Printf("scheduled ingestion failed: %v", err)
		}
	}
}

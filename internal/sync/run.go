package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jhunt/legisync/internal/model"
)

// Run executes the job's fetch/parse/persist loop to completion in a single
// invocation, emitting the typed event stream throughout. Cancellation is
// polled before each batch and each bill: in-flight single-bill work always
// finishes, then the job is left PAUSED with its progress intact. The events
// channel is closed when Run returns; passing nil disables emission.
func (s *Service) Run(ctx context.Context, jobID string, events chan<- Event) error {
	emit := func(e Event) {
		if events != nil {
			events <- e
		}
	}
	if events != nil {
		defer close(events)
	}

	if !s.cfg.SyncEnabled {
		emit(Event{Type: EventError, Message: ErrSyncDisabled.Error()})
		return ErrSyncDisabled
	}

	start := time.Now()
	ok, err := s.jobs.Transition(ctx, jobID, model.JobRunning, model.JobPending, model.JobPaused, model.JobRunning)
	if err != nil {
		return err
	}
	if !ok {
		job, gerr := s.jobs.Get(ctx, jobID)
		if gerr != nil {
			return gerr
		}
		if job == nil {
			emit(Event{Type: EventError, Message: "job not found"})
			return ErrJobNotFound
		}
		emit(Event{Type: EventError, Message: "job is " + job.Status})
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
	}

	s.scanner.Reset()
	emit(Event{Type: EventPhase, Message: "sync started"})

	processed := 0
	for {
		select {
		case <-ctx.Done():
			// Suspend rather than stop: an aborted attended run should be
			// resumable from where it left off.
			s.jobs.Transition(context.WithoutCancel(ctx), jobID, model.JobPaused, model.JobRunning)
			emit(Event{Type: EventPhase, Message: "sync aborted"})
			return ctx.Err()
		default:
		}

		res, err := s.runBatch(ctx, jobID, emit)
		if err != nil {
			s.jobs.SetLastError(context.WithoutCancel(ctx), jobID, err.Error())
			emit(Event{Type: EventError, Message: "sync failed", Detail: err.Error()})
			return err
		}

		job := res.Job
		processed += len(res.Outcomes)

		if job.Status == model.JobCompleted {
			emit(Event{
				Type:     EventComplete,
				Success:  job.TotalErrors == 0,
				Duration: time.Since(start),
				Summary: &Summary{
					Processed: job.TotalProcessed,
					Created:   job.TotalCreated,
					Updated:   job.TotalUpdated,
					Errors:    job.TotalErrors,
				},
			})
			return nil
		}
		if job.Status != model.JobRunning {
			emit(Event{Type: EventPhase, Message: "job " + job.Status})
			return nil
		}
		if s.cfg.MaxBillsPerSync > 0 && processed >= s.cfg.MaxBillsPerSync {
			s.jobs.Transition(ctx, jobID, model.JobPaused, model.JobRunning)
			emit(Event{Type: EventPhase, Message: fmt.Sprintf("per-run cap of %d bills reached", s.cfg.MaxBillsPerSync)})
			return nil
		}
	}
}

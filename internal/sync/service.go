// Package sync orchestrates the bill synchronization pipeline: a persisted,
// resumable job advances batch by batch through the bills available at the
// remote source, fetching, parsing and upserting each one.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jhunt/legisync/internal/config"
	"github.com/jhunt/legisync/internal/model"
	"github.com/jhunt/legisync/internal/normalize"
	"github.com/jhunt/legisync/internal/parse"
	"github.com/jhunt/legisync/internal/scan"
	"github.com/jhunt/legisync/internal/store"
	"github.com/jhunt/legisync/internal/transport"
)

var (
	ErrSyncDisabled      = errors.New("sync is disabled by configuration")
	ErrNoSession         = errors.New("no session code configured")
	ErrJobNotFound       = errors.New("sync job not found")
	ErrInvalidTransition = errors.New("job is not in a state that allows this operation")
)

// BillStore is the persistence surface the sync loop needs for bills.
type BillStore interface {
	Upsert(ctx context.Context, b *model.Bill) (store.UpsertResult, error)
	MaxBillNumber(ctx context.Context, billType string) (int, error)
}

// JobStore is the persistence surface for sync-job state. The persisted row
// is the pause/stop signal across process boundaries.
type JobStore interface {
	Create(ctx context.Context, job *model.SyncJob) error
	Get(ctx context.Context, id string) (*model.SyncJob, error)
	GetActive(ctx context.Context) (*model.SyncJob, error)
	Transition(ctx context.Context, id, to string, from ...string) (bool, error)
	SaveProgress(ctx context.Context, job *model.SyncJob, status string) error
	SetLastError(ctx context.Context, id, message string) error
}

// BillOutcome records what happened to one bill within a batch.
type BillOutcome struct {
	BillID  string  `json:"bill_id"`
	Outcome Outcome `json:"outcome"`
}

// BatchResult is what one ProcessBatch invocation reports back.
type BatchResult struct {
	Job      *model.SyncJob `json:"job"`
	Message  string         `json:"message,omitempty"`
	BillType string         `json:"bill_type,omitempty"`
	Outcomes []BillOutcome  `json:"outcomes,omitempty"`
}

// Service coordinates the sync pipeline. A single sequential worker loop per
// job; jobs never run concurrently by the single-active-job invariant.
type Service struct {
	cfg     *config.Config
	jobs    JobStore
	bills   BillStore
	client  transport.Client
	scanner *scan.Scanner
	parser  *parse.Parser
	log     *logrus.Logger
}

// NewService wires the pipeline together.
func NewService(cfg *config.Config, jobs JobStore, bills BillStore, client transport.Client, scanner *scan.Scanner, log *logrus.Logger) *Service {
	return &Service{
		cfg:     cfg,
		jobs:    jobs,
		bills:   bills,
		client:  client,
		scanner: scanner,
		parser:  parse.NewParser(),
		log:     log,
	}
}

// CreateJob creates a new pending sync job. Fails fast when sync is disabled
// or no session is configured, and with store.ErrJobActive when another job
// is still active.
func (s *Service) CreateJob(ctx context.Context) (*model.SyncJob, error) {
	if !s.cfg.SyncEnabled {
		return nil, ErrSyncDisabled
	}
	if s.cfg.SessionCode == "" {
		return nil, ErrNoSession
	}

	job := &model.SyncJob{
		ID:          uuid.NewString(),
		Status:      model.JobPending,
		SessionCode: s.cfg.SessionCode,
		SessionName: s.cfg.SessionName,
		BillTypes:   append([]string(nil), s.cfg.BillTypes...),
		Progress:    make(map[string]int),
		Completed:   make(map[string]bool),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	// A fresh job must see the source's current tree, not listings cached by
	// a previous run.
	s.scanner.Reset()

	s.log.WithFields(logrus.Fields{"job": job.ID, "session": job.SessionCode}).Info("sync job created")
	return job, nil
}

// PauseJob suspends a running job, preserving all progress.
func (s *Service) PauseJob(ctx context.Context, id string) (*model.SyncJob, error) {
	return s.transition(ctx, id, model.JobPaused, model.JobRunning)
}

// ResumeJob moves a pending or paused job back to running.
func (s *Service) ResumeJob(ctx context.Context, id string) (*model.SyncJob, error) {
	return s.transition(ctx, id, model.JobRunning, model.JobPending, model.JobPaused)
}

// StopJob cancels a job permanently. Progress counters remain for the record.
func (s *Service) StopJob(ctx context.Context, id string) (*model.SyncJob, error) {
	return s.transition(ctx, id, model.JobStopped, model.JobPending, model.JobRunning, model.JobPaused)
}

func (s *Service) transition(ctx context.Context, id, to string, from ...string) (*model.SyncJob, error) {
	ok, err := s.jobs.Transition(ctx, id, to, from...)
	if err != nil {
		return nil, err
	}
	if !ok {
		job, err := s.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
	}
	s.log.WithFields(logrus.Fields{"job": id, "status": to}).Info("sync job transitioned")
	return s.jobs.Get(ctx, id)
}

// ActiveJob returns the single non-terminal job, or nil.
func (s *Service) ActiveJob(ctx context.Context) (*model.SyncJob, error) {
	return s.jobs.GetActive(ctx)
}

// JobByID returns a job by id, or ErrJobNotFound.
func (s *Service) JobByID(ctx context.Context, id string) (*model.SyncJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ProcessBatch runs one bounded unit of work for the job: up to the
// configured batch size of the smallest pending numbers for the first
// incomplete bill type. Designed for time-budgeted environments; an external
// scheduler calls it repeatedly until the job completes.
func (s *Service) ProcessBatch(ctx context.Context, jobID string) (*BatchResult, error) {
	return s.runBatch(ctx, jobID, nil)
}

// runBatch is the shared batch engine behind ProcessBatch and Run. emit may
// be nil.
func (s *Service) runBatch(ctx context.Context, jobID string, emit func(Event)) (*BatchResult, error) {
	if !s.cfg.SyncEnabled {
		return nil, ErrSyncDisabled
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status != model.JobRunning {
		return &BatchResult{Job: job, Message: "job is " + job.Status}, nil
	}

	billType := job.NextType()
	if billType == "" {
		if _, err := s.jobs.Transition(ctx, job.ID, model.JobCompleted, model.JobRunning); err != nil {
			return nil, err
		}
		job, err = s.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return &BatchResult{Job: job, Message: "all bill types complete"}, nil
	}

	delta, err := s.scanner.Delta(ctx, job.SessionCode, billType, job.Progress[billType])
	if err != nil {
		s.jobs.SetLastError(ctx, job.ID, err.Error())
		return nil, err
	}

	if len(delta) == 0 {
		job.Completed[billType] = true
		status := model.JobRunning
		if job.AllTypesComplete() {
			status = model.JobCompleted
		}
		if err := s.jobs.SaveProgress(ctx, job, status); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"job": job.ID, "type": billType}).Info("bill type exhausted")
		send(emit, Event{Type: EventPhase, BillType: billType, Message: billType + " complete"})

		job, err = s.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return &BatchResult{Job: job, BillType: billType, Message: billType + " complete"}, nil
	}

	batch := delta
	if len(batch) > s.cfg.BatchSize {
		batch = batch[:s.cfg.BatchSize]
	}

	result := &BatchResult{BillType: billType}
	for i, number := range batch {
		// The persisted row is the pause/stop signal; re-read it before
		// every fetch so a suspend takes effect within one bill's latency.
		// A failed re-read also aborts: without it there is no way to see a
		// concurrent pause or stop.
		fresh, err := s.jobs.Get(ctx, job.ID)
		if err != nil {
			s.log.WithField("job", job.ID).WithError(err).Warn("job re-read failed, aborting batch")
			break
		}
		if fresh == nil || fresh.Status != model.JobRunning {
			s.log.WithField("job", job.ID).Info("batch aborted by status change")
			break
		}
		if ctx.Err() != nil {
			break
		}

		outcome := s.processOne(ctx, job, billType, number, emit)

		// Advance the watermark regardless of outcome so an absent or
		// persistently broken bill never stalls the type.
		job.Progress[billType] = number
		job.TotalProcessed++
		switch outcome {
		case OutcomeCreated:
			job.TotalCreated++
		case OutcomeUpdated:
			job.TotalUpdated++
		case OutcomeError:
			job.TotalErrors++
		}

		billID := model.BillID(billType, number)
		result.Outcomes = append(result.Outcomes, BillOutcome{BillID: billID, Outcome: outcome})
		send(emit, Event{Type: EventBill, BillID: billID, Outcome: outcome})
		send(emit, Event{
			Type:     EventProgress,
			BillType: billType,
			Current:  i + 1,
			Total:    len(delta),
			Percent:  float64(i+1) / float64(len(delta)) * 100,
		})

		if (i+1)%s.cfg.DelayEvery == 0 && i < len(batch)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	// A batch that drained the whole delta exhausts the type right away;
	// a capped or aborted batch leaves the flag for the next invocation.
	status := model.JobRunning
	if len(result.Outcomes) == len(delta) {
		job.Completed[billType] = true
		if job.AllTypesComplete() {
			status = model.JobCompleted
		}
	}

	if err := s.jobs.SaveProgress(ctx, job, status); err != nil {
		return nil, err
	}

	job, err = s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result.Job = job
	return result, nil
}

// processOne fetches, parses, normalizes and upserts a single bill. Every
// failure is absorbed into an outcome so the batch keeps moving.
func (s *Service) processOne(ctx context.Context, job *model.SyncJob, billType string, number int, emit func(Event)) Outcome {
	billID := model.BillID(billType, number)
	fields := logrus.Fields{"job": job.ID, "bill": billID}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	raw, err := s.client.FetchBillHistory(fctx, job.SessionCode, billType, number)
	if errors.Is(err, transport.ErrNotFound) {
		s.log.WithFields(fields).Debug("bill not present at source")
		return OutcomeSkipped
	}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("transport error")
		send(emit, Event{Type: EventLog, Level: "warn", BillID: billID, Message: "transport error", Detail: err.Error()})
		return OutcomeError
	}

	parsed, err := s.parser.Parse(raw)
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("parse error")
		send(emit, Event{Type: EventLog, Level: "warn", BillID: billID, Message: "parse error", Detail: err.Error()})
		return OutcomeError
	}

	bill := s.buildBill(ctx, parsed)

	result, err := s.bills.Upsert(ctx, bill)
	if err != nil {
		s.log.WithFields(fields).WithError(err).Error("upsert failed")
		send(emit, Event{Type: EventLog, Level: "error", BillID: billID, Message: "persistence error", Detail: err.Error()})
		return OutcomeError
	}
	if result == store.UpsertCreated {
		return OutcomeCreated
	}
	return OutcomeUpdated
}

// buildBill converts a ParsedBill into the persisted shape, fetching and
// normalizing the bill text when a document URL is present. A failed or
// rejected text fetch leaves content null rather than failing the bill.
func (s *Service) buildBill(ctx context.Context, parsed *model.ParsedBill) *model.Bill {
	bill := &model.Bill{
		BillID:         parsed.BillID(),
		BillType:       parsed.BillType,
		BillNumber:     parsed.BillNumber,
		Description:    parsed.Description,
		Authors:        parsed.Authors,
		Coauthors:      parsed.Coauthors,
		Sponsors:       parsed.Sponsors,
		Cosponsors:     parsed.Cosponsors,
		Subjects:       parsed.Subjects,
		Status:         parsed.Status,
		LastAction:     parsed.LastAction,
		LastActionDate: parsed.LastActionDate,
		LastUpdateFTP:  parsed.LastUpdate,
	}

	if c := parsed.OriginCommittee(); c != nil {
		bill.CommitteeName = &c.Name
		if c.Status != "" {
			bill.CommitteeStatus = &c.Status
		}
	}

	if parsed.TextURL != "" {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		if raw, err := s.client.FetchTextDocument(fctx, parsed.TextURL); err == nil {
			if text, ok := normalize.Text(raw); ok {
				bill.Content = &text
			}
		} else if !errors.Is(err, transport.ErrNotFound) {
			s.log.WithField("bill", bill.BillID).WithError(err).Debug("bill text fetch failed")
		}
	}

	return bill
}

func send(emit func(Event), e Event) {
	if emit != nil {
		emit(e)
	}
}

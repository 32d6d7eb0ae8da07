package cmd

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jhunt/legisync/internal/config"
	"github.com/jhunt/legisync/internal/logger"
	"github.com/jhunt/legisync/internal/model"
	"github.com/jhunt/legisync/internal/scan"
	"github.com/jhunt/legisync/internal/store"
	"github.com/jhunt/legisync/internal/sync"
	"github.com/jhunt/legisync/internal/transport"
)

var (
	syncBatch bool
	syncJobID string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a bill synchronization job",
	Long: `Sync discovers which bills exist at the remote source, fetches and
parses each one, and upserts the results.

By default a new job is created (or the active one resumed) and run to
completion, streaming progress to the log. With --batch, exactly one bounded
batch is processed and the command exits; an external scheduler can invoke it
repeatedly until the job completes.

Examples:
  # Run until the session is fully synchronized
  ./legisync sync

  # Process a single batch of the active job
  ./legisync sync --batch

  # Process a single batch of a specific job
  ./legisync sync --batch --job 6f1b...`,
	Run: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncBatch, "batch", false, "Process one batch and exit instead of running to completion")
	syncCmd.Flags().StringVar(&syncJobID, "job", "", "Job id to operate on (defaults to the active job)")
}

func runSync(cmd *cobra.Command, args []string) {
	log := logger.New("sync")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received interrupt signal, suspending sync...")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to migrate schema")
	}

	svc, client := buildService(cfg, log, db)
	defer client.Close()

	if syncBatch {
		runOneBatch(ctx, svc, log)
		return
	}

	job, err := resolveJob(ctx, svc)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve sync job")
	}
	log.WithFields(logrus.Fields{"job": job.ID, "session": job.SessionCode}).Info("running sync job")

	events := make(chan sync.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(log, events)
	}()

	err = svc.Run(ctx, job.ID, events)
	<-done

	if err != nil {
		if ctx.Err() != nil {
			log.Info("sync suspended; resume with ./legisync sync")
			os.Exit(1)
		}
		log.WithError(err).Fatal("sync failed")
	}
}

// buildService wires the pipeline from configuration. The transport variant
// is chosen here; nothing downstream knows which is active.
func buildService(cfg *config.Config, log *logrus.Logger, db *sql.DB) (*sync.Service, transport.Client) {
	var client transport.Client
	switch cfg.Transport {
	case config.TransportHTTP:
		client = transport.NewHTTPClient(cfg.HTTPBaseURL, cfg.FetchTimeout)
	default:
		client = transport.NewFTPClient(cfg.FTPAddr, cfg.FTPUser, cfg.FTPPassword, cfg.FetchTimeout)
	}

	bills := store.NewBillStore(db)
	jobs := store.NewJobStore(db)
	scanner := scan.NewScanner(client, bills)
	return sync.NewService(cfg, jobs, bills, client, scanner, log), client
}

// resolveJob picks the job to run: --job if given, else the active job, else
// a freshly created one.
func resolveJob(ctx context.Context, svc *sync.Service) (*model.SyncJob, error) {
	if syncJobID != "" {
		return svc.JobByID(ctx, syncJobID)
	}
	if job, err := svc.ActiveJob(ctx); err != nil {
		return nil, err
	} else if job != nil {
		return job, nil
	}
	return svc.CreateJob(ctx)
}

func runOneBatch(ctx context.Context, svc *sync.Service, log *logrus.Logger) {
	job, err := resolveJob(ctx, svc)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve sync job")
	}
	if job.Status == model.JobPending || job.Status == model.JobPaused {
		if job, err = svc.ResumeJob(ctx, job.ID); err != nil {
			log.WithError(err).Fatal("failed to resume job")
		}
	}

	result, err := svc.ProcessBatch(ctx, job.ID)
	if err != nil {
		log.WithError(err).Fatal("batch failed")
	}

	log.WithFields(logrus.Fields{
		"job":       result.Job.ID,
		"status":    result.Job.Status,
		"type":      result.BillType,
		"batch":     len(result.Outcomes),
		"processed": result.Job.TotalProcessed,
		"created":   result.Job.TotalCreated,
		"updated":   result.Job.TotalUpdated,
		"errors":    result.Job.TotalErrors,
	}).Info("batch finished")
	if result.Message != "" {
		log.Info(result.Message)
	}
	if result.Job.Status == model.JobCompleted {
		log.Info("sync job completed")
	}
}

// printEvents renders the event stream to the log until it is closed.
func printEvents(log *logrus.Logger, events <-chan sync.Event) {
	for e := range events {
		switch e.Type {
		case sync.EventPhase:
			log.Info(e.Message)
		case sync.EventProgress:
			log.WithFields(logrus.Fields{
				"type":    e.BillType,
				"current": e.Current,
				"total":   e.Total,
			}).Infof("progress %.1f%%", e.Percent)
		case sync.EventBill:
			log.WithFields(logrus.Fields{"bill": e.BillID, "outcome": e.Outcome}).Debug("bill processed")
		case sync.EventComplete:
			log.WithFields(logrus.Fields{
				"processed": e.Summary.Processed,
				"created":   e.Summary.Created,
				"updated":   e.Summary.Updated,
				"errors":    e.Summary.Errors,
				"duration":  e.Duration.Round(time.Second).String(),
			}).Info("sync complete")
		case sync.EventError:
			log.WithField("detail", e.Detail).Error(e.Message)
		case sync.EventLog:
			entry := log.WithFields(logrus.Fields{"bill": e.BillID, "detail": e.Detail})
			if e.Level == "error" {
				entry.Error(e.Message)
			} else {
				entry.Warn(e.Message)
			}
		}
	}
}

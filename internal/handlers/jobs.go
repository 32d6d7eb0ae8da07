package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhunt/legisync/internal/model"
	"github.com/jhunt/legisync/internal/store"
	"github.com/jhunt/legisync/internal/sync"
)

// CreateJobHandler starts a new sync job.
func CreateJobHandler(svc *sync.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.Background()

		job, err := svc.CreateJob(ctx)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrJobActive):
				return fail(c, fiber.StatusConflict, err)
			case errors.Is(err, sync.ErrSyncDisabled), errors.Is(err, sync.ErrNoSession):
				return fail(c, fiber.StatusBadRequest, err)
			default:
				return fail(c, fiber.StatusInternalServerError, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(job)
	}
}

// ActiveJobHandler returns the single non-terminal job, if any.
func ActiveJobHandler(svc *sync.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		job, err := svc.ActiveJob(context.Background())
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		if job == nil {
			return fail(c, fiber.StatusNotFound, errors.New("no active sync job"))
		}
		return c.JSON(job)
	}
}

// JobHandler returns one job by id.
func JobHandler(svc *sync.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		job, err := svc.JobByID(context.Background(), c.Params("id"))
		if err != nil {
			if errors.Is(err, sync.ErrJobNotFound) {
				return fail(c, fiber.StatusNotFound, err)
			}
			return fail(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(job)
	}
}

// PauseJobHandler suspends a running job.
func PauseJobHandler(svc *sync.Service) fiber.Handler {
	return controlHandler(svc.PauseJob)
}

// ResumeJobHandler resumes a pending or paused job.
func ResumeJobHandler(svc *sync.Service) fiber.Handler {
	return controlHandler(svc.ResumeJob)
}

// StopJobHandler cancels a job permanently.
func StopJobHandler(svc *sync.Service) fiber.Handler {
	return controlHandler(svc.StopJob)
}

// BatchHandler runs one bounded batch for the job and reports the outcome.
// External schedulers hit this endpoint repeatedly until the job completes.
func BatchHandler(svc *sync.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := svc.ProcessBatch(context.Background(), c.Params("id"))
		if err != nil {
			switch {
			case errors.Is(err, sync.ErrJobNotFound):
				return fail(c, fiber.StatusNotFound, err)
			case errors.Is(err, sync.ErrSyncDisabled):
				return fail(c, fiber.StatusBadRequest, err)
			default:
				return fail(c, fiber.StatusInternalServerError, err)
			}
		}
		return c.JSON(result)
	}
}

func controlHandler(op func(ctx context.Context, id string) (*model.SyncJob, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		job, err := op(context.Background(), c.Params("id"))
		if err != nil {
			switch {
			case errors.Is(err, sync.ErrJobNotFound):
				return fail(c, fiber.StatusNotFound, err)
			case errors.Is(err, sync.ErrInvalidTransition):
				return fail(c, fiber.StatusConflict, err)
			default:
				return fail(c, fiber.StatusInternalServerError, err)
			}
		}
		return c.JSON(job)
	}
}

func fail(c *fiber.Ctx, code int, err error) error {
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deadline-engine/internal/service"
	"github.com/spec-kit/deadline-engine/internal/worker"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

// SweepRunner runs a named sweep once. Unknown names yield worker.ErrUnknownJob.
type SweepRunner interface {
	RunNamed(ctx context.Context, name string) (service.SweepReport, error)
}

// SweepsHandler triggers sweeps on demand.
type SweepsHandler struct {
	runner SweepRunner
}

// NewSweepsHandler constructs handler.
func NewSweepsHandler(runner SweepRunner) *SweepsHandler {
	return &SweepsHandler{runner: runner}
}

// Run POST /sweeps/:name.
func (h *SweepsHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")
	report, err := h.runner.RunNamed(c.UserContext(), name)
	if errors.Is(err, worker.ErrUnknownJob) {
		return apperrors.NewNotFound("sweep", map[string]any{"name": name})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

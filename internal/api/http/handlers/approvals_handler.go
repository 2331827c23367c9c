package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deadline-engine/internal/api/dto"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/service"
)

// ApprovalsHandler creates approval steps.
type ApprovalsHandler struct {
	approvals *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvals *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{approvals: approvals}
}

// Create POST /approvals.
func (h *ApprovalsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateApprovalRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	step, err := h.approvals.CreateStep(c.UserContext(), service.CreateStepInput{
		TicketID: req.TicketID,
		Level:    req.Level,
		Name:     req.Name,
		Selector: domain.ApproverSelector{
			Type:   domain.SelectorType(req.Selector.Type),
			UserID: req.Selector.UserID,
		},
	}, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewApprovalStepResponse(step)})
}

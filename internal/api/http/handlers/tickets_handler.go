package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deadline-engine/internal/api/dto"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/service"
)

// TicketsHandler drives the SLA timer and assignment of a ticket.
type TicketsHandler struct {
	timers      *service.TimerService
	assignments *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(timers *service.TimerService, assignments *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{timers: timers, assignments: assignments}
}

// AttachSLA POST /tickets/:id/sla.
func (h *TicketsHandler) AttachSLA(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AttachSLARequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.timers.AttachSLA(c.UserContext(), c.Params("id"), req.SLAID, req.StartedAt, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDeadlineResponse(ticket)})
}

// Deadline GET /tickets/:id/deadline.
func (h *TicketsHandler) Deadline(c *fiber.Ctx) error {
	view, err := h.timers.Deadline(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// StopTimer POST /tickets/:id/timer/stop.
func (h *TicketsHandler) StopTimer(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.StopTimerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.timers.StopTimer(c.UserContext(), c.Params("id"), req.Reason, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// StartTimer POST /tickets/:id/timer/start.
func (h *TicketsHandler) StartTimer(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.timers.StartTimer(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Finalize POST /tickets/:id/finalize.
func (h *TicketsHandler) Finalize(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.FinalizeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.timers.Finalize(c.UserContext(), c.Params("id"), domain.TicketStatus(req.Status), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDeadlineResponse(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignTechnicianRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.assignments.AssignTechnician(c.UserContext(), c.Params("id"), req.TechnicianID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

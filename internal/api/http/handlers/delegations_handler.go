package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deadline-engine/internal/api/dto"
	"github.com/spec-kit/deadline-engine/internal/calendar"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/service"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

// DelegationsHandler exposes the delegation registry.
type DelegationsHandler struct {
	service *service.DelegationService
	cal     *calendar.Calendar
}

// NewDelegationsHandler constructs handler.
func NewDelegationsHandler(delegations *service.DelegationService, cal *calendar.Calendar) *DelegationsHandler {
	return &DelegationsHandler{service: delegations, cal: cal}
}

// Create POST /delegations.
func (h *DelegationsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateDelegationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	start, err := h.cal.ParseDate(req.StartDate)
	if err != nil {
		return apperrors.NewValidationError("invalid start_date", map[string]any{"start_date": req.StartDate})
	}
	end, err := h.cal.ParseDate(req.EndDate)
	if err != nil {
		return apperrors.NewValidationError("invalid end_date", map[string]any{"end_date": req.EndDate})
	}

	view, err := h.service.CreateDelegation(c.UserContext(), service.CreateDelegationInput{
		Kind:             domain.DelegationKind(req.Kind),
		OriginalPersonID: req.OriginalPersonID,
		BackupPersonID:   req.BackupPersonID,
		WindowStart:      start,
		WindowEnd:        end,
		DivertExisting:   req.DivertExisting,
		Reason:           strings.TrimSpace(req.Reason),
	}, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewDelegationResponse(*view, h.cal.Location())})
}

// List GET /delegations.
func (h *DelegationsHandler) List(c *fiber.Ctx) error {
	filter := domain.DelegationFilter{
		ActiveOnly: c.QueryBool("active_only", false),
		Limit:      parseInt(c.Query("limit"), 50),
		Offset:     c.QueryInt("offset", 0),
	}
	if kind := domain.DelegationKind(strings.ToUpper(c.Query("kind"))); kind != "" {
		if !kind.Valid() {
			return apperrors.NewValidationError("kind must be APPROVER or TECHNICIAN", map[string]any{"kind": kind})
		}
		filter.Kind = &kind
	}
	if original := c.Query("original_person_id"); original != "" {
		filter.OriginalPersonID = &original
	}
	if backup := c.Query("backup_person_id"); backup != "" {
		filter.BackupPersonID = &backup
	}

	views, err := h.service.ListDelegations(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.responses(views)})
}

// UpcomingExpirations GET /delegations/upcoming-expirations.
func (h *DelegationsHandler) UpcomingExpirations(c *fiber.Ctx) error {
	views, err := h.service.UpcomingExpirations(c.UserContext(), parseInt(c.Query("days"), 7))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.responses(views)})
}

// Get GET /delegations/:id.
func (h *DelegationsHandler) Get(c *fiber.Ctx) error {
	detail, err := h.service.GetDelegation(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDelegationDetailResponse(detail, h.cal.Location())})
}

// Deactivate POST /delegations/:id/deactivate.
func (h *DelegationsHandler) Deactivate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.service.DeactivateDelegation(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

func (h *DelegationsHandler) responses(views []service.DelegationView) []dto.DelegationResponse {
	items := make([]dto.DelegationResponse, 0, len(views))
	for _, view := range views {
		items = append(items, dto.NewDelegationResponse(view, h.cal.Location()))
	}
	return items
}

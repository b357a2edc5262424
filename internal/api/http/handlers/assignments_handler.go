package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/service"
	apperrors "github.com/spec-kit/credential-service/pkg/util/errorutil"
)

// AssignmentsHandler manages events_staff endpoints.
type AssignmentsHandler struct {
	assignments *service.AssignmentService
	ledger      *service.CheckLedger
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignments *service.AssignmentService, ledger *service.CheckLedger) *AssignmentsHandler {
	return &AssignmentsHandler{assignments: assignments, ledger: ledger}
}

// CreateAssignment POST /api/v1/event-staff.
func (h *AssignmentsHandler) CreateAssignment(c *fiber.Ctx) error {
	var req dto.CreateAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	// An authenticated operator is always the author.
	if principal, ok := auth.PrincipalFromContext(c); ok {
		req.CreatedBy = principal.UserID
	}
	if err := validate.Struct(req); err != nil {
		return validationFailed("event_id, staff_id and staff_cpf are required", err)
	}

	assignment, err := h.assignments.CreateAssignment(c.UserContext(), service.AssignmentCreateInput{
		EventID:   req.EventID,
		StaffID:   req.StaffID,
		StaffCPF:  req.StaffCPF,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewAssignmentResponse(assignment))
}

// ListAssignments GET /api/v1/event-staff.
func (h *AssignmentsHandler) ListAssignments(c *fiber.Ctx) error {
	var query dto.AssignmentListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query parameters", nil)
	}
	if err := validate.Struct(query); err != nil {
		return validationFailed("invalid query parameters", err)
	}

	filter := service.AssignmentListFilter{}
	if query.EventID > 0 {
		filter.EventID = &query.EventID
	}
	if query.StaffCPF != "" {
		filter.StaffCPF = &query.StaffCPF
	}
	filter.Limit, filter.Offset = pageWindow(query.Page, query.PageSize)

	assignments, err := h.assignments.ListAssignments(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		items = append(items, dto.NewAssignmentResponse(&assignments[i]))
	}
	return c.JSON(items)
}

// GetAssignment GET /api/v1/event-staff/:id.
func (h *AssignmentsHandler) GetAssignment(c *fiber.Ctx) error {
	presence, err := h.ledger.Presence(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewAssignmentDetailResponse(presence.Assignment, presence.State, presence.LastCheck))
}

// ListAssignmentChecks GET /api/v1/event-staff/:id/checks.
func (h *AssignmentsHandler) ListAssignmentChecks(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.assignments.GetAssignment(c.UserContext(), id); err != nil {
		return err
	}
	checks, err := h.ledger.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewCheckResponses(checks))
}

package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/service"
	apperrors "github.com/spec-kit/credential-service/pkg/util/errorutil"
)

// ChecksHandler exposes the check ledger.
type ChecksHandler struct {
	ledger *service.CheckLedger
}

// NewChecksHandler constructs handler.
func NewChecksHandler(ledger *service.CheckLedger) *ChecksHandler {
	return &ChecksHandler{ledger: ledger}
}

// CreateCheck POST /api/v1/checks.
func (h *ChecksHandler) CreateCheck(c *fiber.Ctx) error {
	var req dto.CreateCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.EventsStaffID = strings.TrimSpace(req.EventsStaffID)

	if err := validate.Struct(req); err != nil {
		details := fieldErrors(err)
		for _, rule := range details {
			if rule == "required" {
				return validationFailed("action, events_staff_id, and user_control_id are required", err)
			}
		}
		if _, ok := details["action"]; ok {
			return apperrors.NewValidationError("Invalid action. Must be: registration, check-in, or check-out",
				map[string]any{"action": req.Action})
		}
		if _, ok := details["user_control_id"]; ok {
			return apperrors.NewValidationError("user_control_id must be positive", nil)
		}
		return validationFailed("action, events_staff_id, and user_control_id are required", err)
	}

	check, err := h.ledger.RecordAction(c.UserContext(), service.RecordActionInput{
		AssignmentID:  req.EventsStaffID,
		Action:        domain.CheckAction(req.Action),
		UserControlID: req.UserControlID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewCheckResponse(check))
}

// ListChecks GET /api/v1/checks.
func (h *ChecksHandler) ListChecks(c *fiber.Ctx) error {
	var query dto.CheckListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query parameters", nil)
	}
	if err := validate.Struct(query); err != nil {
		return validationFailed("invalid query parameters", err)
	}

	filter := service.CheckListFilter{}
	if id := strings.TrimSpace(query.EventsStaffID); id != "" {
		filter.EventsStaffID = &id
	}
	if query.EventID > 0 {
		filter.EventID = &query.EventID
	}
	if query.StaffCPF != "" {
		filter.StaffCPF = &query.StaffCPF
	}
	// Unknown actions are ignored rather than rejected.
	if action := domain.CheckAction(query.Action); action.Valid() {
		filter.Action = &action
	}
	filter.Limit, filter.Offset = pageWindow(query.Page, query.PageSize)

	checks, err := h.ledger.ListChecks(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewCheckResponses(checks))
}

// GetCheck GET /api/v1/checks/:id.
func (h *ChecksHandler) GetCheck(c *fiber.Ctx) error {
	id, err := parseCheckID(c)
	if err != nil {
		return err
	}
	check, err := h.ledger.GetCheck(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewCheckResponse(check))
}

package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/api/dto"
	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/service"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// AdminHandler exposes the administrator ticket workflows.
type AdminHandler struct {
	tickets   *service.TicketService
	directory *service.DirectoryService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(tickets *service.TicketService, directory *service.DirectoryService) *AdminHandler {
	return &AdminHandler{tickets: tickets, directory: directory}
}

// List handles GET /api/admin/tickets with page/limit pagination.
func (h *AdminHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	tickets, total, err := h.tickets.List(c.UserContext(), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.Summaries(tickets),
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// ChangeStatus handles PUT /api/admin/tickets/:id/status.
func (h *AdminHandler) ChangeStatus(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.StatusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.tickets.ChangeStatus(c.UserContext(), CurrentPrincipal(c).Login, id,
		domain.TicketStatus(req.Status), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// Assign handles PUT /api/admin/tickets/:id/assign.
func (h *AdminHandler) Assign(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.tickets.Assign(c.UserContext(), CurrentPrincipal(c).Login, id,
		req.MainExecutor, req.Executor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// AddComment handles POST /api/admin/tickets/:id/comments.
func (h *AdminHandler) AddComment(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.tickets.AddComment(c.UserContext(), CurrentPrincipal(c).Login, id, req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// Search handles GET /api/admin/search.
func (h *AdminHandler) Search(c *fiber.Ctx) error {
	filter, err := searchFilterFromQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.Search(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Summaries(tickets)})
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.tickets.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Users handles GET /api/admin/users.
func (h *AdminHandler) Users(c *fiber.Ctx) error {
	users, err := h.directory.Users(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Users(users)})
}

// searchFilterFromQuery builds a search filter from query parameters shared
// by the admin and integration search endpoints.
func searchFilterFromQuery(c *fiber.Ctx) (repository.SearchFilter, error) {
	filter := repository.SearchFilter{
		Term:      c.Query("q"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
		Limit:     c.QueryInt("limit", 0),
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid user_id", map[string]any{"user_id": raw})
		}
		filter.UserID = &userID
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.TicketStatus(raw)
		if !status.Valid() {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{
				"status":  raw,
				"allowed": domain.AllStatuses,
			})
		}
		filter.Status = &status
	}
	return filter, nil
}

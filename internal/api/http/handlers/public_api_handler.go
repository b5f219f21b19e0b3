package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/api/dto"
	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/service"
	"github.com/itsupport/helpdesk/internal/session"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// apiActor attributes changes made through the integration API.
const apiActor = "api"

// apiPrincipal is the synthetic caller for key-authenticated reads, which see
// every ticket.
func apiPrincipal() *session.Principal {
	return &session.Principal{Login: apiActor, Role: domain.RoleAdmin}
}

// PublicAPIHandler exposes the key-protected integration API under /api/v1.
type PublicAPIHandler struct {
	tickets   *service.TicketService
	directory *service.DirectoryService
}

// NewPublicAPIHandler constructs the handler.
func NewPublicAPIHandler(tickets *service.TicketService, directory *service.DirectoryService) *PublicAPIHandler {
	return &PublicAPIHandler{tickets: tickets, directory: directory}
}

// List handles GET /api/v1/tickets.
func (h *PublicAPIHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	tickets, total, err := h.tickets.List(c.UserContext(), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    dto.APISummaries(tickets),
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// Get handles GET /api/v1/tickets/:id.
func (h *PublicAPIHandler) Get(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	details, _, err := h.tickets.Get(c.UserContext(), apiPrincipal(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.FromDetail(details)})
}

// GetStatus handles GET /api/v1/tickets/:id/status.
func (h *PublicAPIHandler) GetStatus(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	details, _, err := h.tickets.Get(c.UserContext(), apiPrincipal(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"id":          details.ID,
		"status":      details.Status,
		"status_text": details.Status.Text(),
	}})
}

// PutStatus handles PUT /api/v1/tickets/:id/status. Re-setting the current
// status is rejected.
func (h *PublicAPIHandler) PutStatus(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.StatusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.tickets.ChangeStatus(c.UserContext(), apiActor, id,
		domain.TicketStatus(req.Status), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.Detail(details, false)})
}

// Patch handles PATCH /api/v1/tickets/:id. Only executors, comments and the
// description may be changed.
func (h *PublicAPIHandler) Patch(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.PatchTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	update := repository.TicketUpdate{
		MainExecutor: req.MainExecutor,
		Executor:     req.Executor,
		Comments:     req.Comments,
		Description:  req.Description,
	}
	details, err := h.tickets.Patch(c.UserContext(), id, update)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.Detail(details, false)})
}

// Assign handles POST /api/v1/tickets/:id/assign.
func (h *PublicAPIHandler) Assign(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.tickets.Assign(c.UserContext(), apiActor, id, req.MainExecutor, req.Executor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.Detail(details, false)})
}

// History handles GET /api/v1/tickets/:id/history.
func (h *PublicAPIHandler) History(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	history, err := h.tickets.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": history})
}

// Search handles GET /api/v1/tickets/search.
func (h *PublicAPIHandler) Search(c *fiber.Ctx) error {
	filter, err := searchFilterFromQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.Search(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.APISummaries(tickets)})
}

// Stats handles GET /api/v1/stats.
func (h *PublicAPIHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.tickets.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

// Users handles GET /api/v1/users.
func (h *PublicAPIHandler) Users(c *fiber.Ctx) error {
	users, err := h.directory.Users(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.Users(users)})
}

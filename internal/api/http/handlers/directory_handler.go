package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/api/dto"
	"github.com/itsupport/helpdesk/internal/service"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// DirectoryHandler serves reference data endpoints.
type DirectoryHandler struct {
	directory *service.DirectoryService
}

// NewDirectoryHandler constructs the handler.
func NewDirectoryHandler(directory *service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// ProblemTypes handles GET /api/problem-types.
func (h *DirectoryHandler) ProblemTypes(c *fiber.Ctx) error {
	types, err := h.directory.ProblemTypes(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": types})
}

// Cabinets handles GET /api/cabinets.
func (h *DirectoryHandler) Cabinets(c *fiber.Ctx) error {
	cabinets, err := h.directory.Cabinets(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cabinets})
}

// AddCabinet handles POST /api/cabinets. Admin only.
func (h *DirectoryHandler) AddCabinet(c *fiber.Ctx) error {
	var req dto.CabinetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.directory.AddCabinet(c.UserContext(), CurrentPrincipal(c), req.Number); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"number": req.Number}})
}

// Contact handles GET /api/user/contacts for the caller.
func (h *DirectoryHandler) Contact(c *fiber.Ctx) error {
	contact, err := h.directory.Contact(c.UserContext(), CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": contact})
}

// SaveContact handles PUT /api/user/contacts.
func (h *DirectoryHandler) SaveContact(c *fiber.Ctx) error {
	var req dto.ContactRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.directory.SaveContact(c.UserContext(), CurrentPrincipal(c), req.Phone, req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"saved": true}})
}

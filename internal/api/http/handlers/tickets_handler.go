package handlers

import (
	"io"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/api/dto"
	"github.com/itsupport/helpdesk/internal/service"
	"github.com/itsupport/helpdesk/internal/storage"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// TicketsHandler exposes the ticket endpoints for authenticated users.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs the handler.
func NewTicketsHandler(tickets *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// Create handles POST /api/tickets. The body is multipart form data with the
// ticket fields and up to seven files.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal := CurrentPrincipal(c)

	problemTypeID, _ := strconv.ParseInt(c.FormValue("problem_type_id"), 10, 64)
	input := service.TicketCreateInput{
		Cabinet:       c.FormValue("cabinet"),
		ProblemTypeID: problemTypeID,
		Description:   c.FormValue("description"),
		Phone:         c.FormValue("phone"),
		Email:         c.FormValue("email"),
		Uploads:       formUploads(c),
	}

	details, err := h.tickets.Create(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// ListOwn handles GET /api/tickets/my.
func (h *TicketsHandler) ListOwn(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListOwn(c.UserContext(), CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Summaries(tickets)})
}

// Get handles GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	details, canEdit, err := h.tickets.Get(c.UserContext(), CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, canEdit)})
}

// Update handles PUT /api/tickets/:id for the ticket's owner.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details, err := h.tickets.UpdateOwn(c.UserContext(), CurrentPrincipal(c), id, req.Description, req.Comments)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// AddFiles handles POST /api/tickets/:id/files.
func (h *TicketsHandler) AddFiles(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	details, err := h.tickets.AddFiles(c.UserContext(), CurrentPrincipal(c), id, formUploads(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// DeleteFile handles DELETE /api/tickets/:ticketId/files/:filename.
func (h *TicketsHandler) DeleteFile(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("ticketId"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("ticketId")})
	}
	filename, err := url.PathUnescape(c.Params("filename"))
	if err != nil || filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "..") {
		return apperrors.NewValidationError("invalid file name", nil)
	}
	details, err := h.tickets.DeleteFile(c.UserContext(), CurrentPrincipal(c), id, filename)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Detail(details, true)})
}

// ticketID parses the :id route parameter.
func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

// formUploads collects the multipart files from the "files" field.
func formUploads(c *fiber.Ctx) []storage.Upload {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	headers := form.File["files"]
	uploads := make([]storage.Upload, 0, len(headers))
	for _, header := range headers {
		uploads = append(uploads, uploadFromHeader(header))
	}
	return uploads
}

func uploadFromHeader(header *multipart.FileHeader) storage.Upload {
	return storage.Upload{
		Name: header.Filename,
		Size: header.Size,
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

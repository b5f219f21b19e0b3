package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/events"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/session"
	"github.com/itsupport/helpdesk/internal/storage"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

const commentTimeLayout = "02.01.2006 15:04"

// TicketService coordinates ticket workflows.
type TicketService struct {
	store      repository.Store
	files      *storage.Manager
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(store repository.Store, files *storage.Manager, dispatcher events.Dispatcher, logger *zap.Logger) *TicketService {
	return &TicketService{
		store:      store,
		files:      files,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Cabinet       string
	ProblemTypeID int64
	Description   string
	Phone         string
	Email         string
	Uploads       []storage.Upload
}

// StatusHistoryEntry is one step of a ticket's lifecycle, derived from the
// recorded timestamps.
type StatusHistoryEntry struct {
	Status    domain.TicketStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
}

// Create registers a new ticket for the caller, storing any attachments and
// refreshing the caller's contact details. A failure after files were staged
// removes everything written.
func (s *TicketService) Create(ctx context.Context, principal *session.Principal, input TicketCreateInput) (*domain.TicketDetails, error) {
	input.Cabinet = strings.TrimSpace(input.Cabinet)
	input.Description = strings.TrimSpace(input.Description)
	if input.Cabinet == "" || input.Description == "" || input.ProblemTypeID == 0 {
		return nil, apperrors.NewValidationError("cabinet, problem type and description are required", nil)
	}

	staged, err := s.files.Stage(input.Uploads)
	if err != nil {
		return nil, err
	}

	if input.Phone != "" || input.Email != "" {
		if err := s.store.UpsertContact(ctx, principal.UserID, input.Phone, input.Email); err != nil {
			s.files.Discard(staged)
			return nil, apperrors.MapError(err)
		}
	}

	ticket := &domain.Ticket{
		UserID:        principal.UserID,
		Cabinet:       input.Cabinet,
		ProblemTypeID: input.ProblemTypeID,
		Description:   input.Description,
		Phone:         input.Phone,
		Email:         input.Email,
		Status:        domain.TicketStatusOpen,
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		s.files.Discard(staged)
		return nil, apperrors.MapError(err)
	}

	if len(staged) > 0 {
		paths, err := s.files.Commit(ticket.ID, ticket.CreatedAt, staged)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateTicketFiles(ctx, ticket.ID, paths); err != nil {
			for _, path := range paths {
				_ = s.files.Remove(path)
			}
			return nil, apperrors.MapError(err)
		}
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    principal.Login,
		Payload: events.TicketCreatedPayload{
			UserID:        ticket.UserID,
			Cabinet:       ticket.Cabinet,
			ProblemTypeID: ticket.ProblemTypeID,
			FileCount:     len(staged),
		},
	})
	return s.getDetails(ctx, ticket.ID)
}

// Get fetches a ticket visible to the caller. Admins see every ticket, owners
// only their own. The second result reports whether the caller may still edit
// the ticket.
func (s *TicketService) Get(ctx context.Context, principal *session.Principal, id int64) (*domain.TicketDetails, bool, error) {
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !principal.IsAdmin() && details.UserID != principal.UserID {
		return nil, false, apperrors.NewForbidden("access denied")
	}
	canEdit := principal.IsAdmin() ||
		(details.UserID == principal.UserID && details.Status.EditableByOwner())
	return details, canEdit, nil
}

// ListOwn returns the caller's tickets, newest first.
func (s *TicketService) ListOwn(ctx context.Context, principal *session.Principal) ([]domain.TicketDetails, error) {
	tickets, err := s.store.ListUserTickets(ctx, principal.UserID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// List returns a page of all tickets plus the total count. Archived tickets
// are excluded.
func (s *TicketService) List(ctx context.Context, page, limit int) ([]domain.TicketDetails, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	tickets, err := s.store.ListTickets(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	total, err := s.store.CountTickets(ctx)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return tickets, total, nil
}

// UpdateOwn lets the ticket's owner change the description or comments while
// the ticket is still in an owner-editable status. Nil fields stay untouched.
func (s *TicketService) UpdateOwn(ctx context.Context, principal *session.Principal, id int64, description, comments *string) (*domain.TicketDetails, error) {
	update := repository.TicketUpdate{Comments: comments}
	if description != nil {
		trimmed := strings.TrimSpace(*description)
		if trimmed == "" {
			return nil, apperrors.NewValidationError("description must not be empty", nil)
		}
		update.Description = &trimmed
	}
	if update.Empty() {
		return nil, apperrors.NewValidationError("no updatable fields provided", nil)
	}
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if details.UserID != principal.UserID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if !details.Status.EditableByOwner() {
		return nil, apperrors.NewConflict("ticket can no longer be edited", map[string]any{
			"status": details.Status,
		})
	}
	if err := ensureCommentsExtend(details.Comments, update.Comments); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTicket(ctx, id, update); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.getDetails(ctx, id)
}

// ensureCommentsExtend rejects a comments value that rewrites history. The log
// is append-only: a new value must keep the stored text as its prefix.
func ensureCommentsExtend(stored string, next *string) error {
	if next == nil || strings.HasPrefix(*next, stored) {
		return nil
	}
	return apperrors.NewConflict("comments may only be extended", nil)
}

// AddFiles attaches more files to a ticket. The combined attachment count
// stays within the per-ticket cap.
func (s *TicketService) AddFiles(ctx context.Context, principal *session.Principal, id int64, uploads []storage.Upload) (*domain.TicketDetails, error) {
	if len(uploads) == 0 {
		return nil, apperrors.NewValidationError("no files provided", nil)
	}
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && details.UserID != principal.UserID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if len(details.Files)+len(uploads) > s.files.MaxFiles() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("ticket may hold at most %d files", s.files.MaxFiles()),
			map[string]any{"existing": len(details.Files), "adding": len(uploads)})
	}

	staged, err := s.files.Stage(uploads)
	if err != nil {
		return nil, err
	}
	paths, err := s.files.Commit(id, details.CreatedAt, staged)
	if err != nil {
		return nil, err
	}
	combined := append(append([]string{}, details.Files...), paths...)
	if err := s.store.UpdateTicketFiles(ctx, id, combined); err != nil {
		for _, path := range paths {
			_ = s.files.Remove(path)
		}
		return nil, apperrors.MapError(err)
	}
	return s.getDetails(ctx, id)
}

// DeleteFile removes one attachment by file name, from both the ticket record
// and disk.
func (s *TicketService) DeleteFile(ctx context.Context, principal *session.Principal, id int64, filename string) (*domain.TicketDetails, error) {
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && details.UserID != principal.UserID {
		return nil, apperrors.NewForbidden("access denied")
	}

	index := -1
	for i, path := range details.Files {
		if path == filename || strings.HasSuffix(path, "/"+filename) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, apperrors.NewNotFound("file", map[string]any{"file": filename})
	}
	removed := details.Files[index]
	remaining := append(append([]string{}, details.Files[:index]...), details.Files[index+1:]...)
	if err := s.store.UpdateTicketFiles(ctx, id, remaining); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.files.Remove(removed); err != nil {
		s.logger.Warn("attachment removed from record but not disk",
			zap.Int64("ticket_id", id), zap.String("file", removed), zap.Error(err))
	}
	return s.getDetails(ctx, id)
}

// ChangeStatus moves a ticket to a new status, recording the lifecycle
// timestamp on first entry only. Setting the current status again is
// rejected. A non-empty note is appended to the ticket's comment log.
func (s *TicketService) ChangeStatus(ctx context.Context, actor string, id int64, status domain.TicketStatus, note string) (*domain.TicketDetails, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{
			"status":  status,
			"allowed": domain.AllStatuses,
		})
	}
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if details.Status == status {
		return nil, apperrors.NewValidationError("ticket already has this status", map[string]any{
			"status": status,
		})
	}

	if err := s.store.SetStatus(ctx, id, status, s.now()); err != nil {
		return nil, apperrors.MapError(err)
	}
	if note = strings.TrimSpace(note); note != "" {
		if err := s.appendComment(ctx, actor, id, note); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: id,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: details.Status,
			NewStatus: status,
			Comment:   note,
		},
	})
	return s.getDetails(ctx, id)
}

// Assign sets the executors of a ticket. The assignment timestamp is written
// on first assignment only, and an open ticket moves to the assigned status.
func (s *TicketService) Assign(ctx context.Context, actor string, id int64, mainExecutor, executor string) (*domain.TicketDetails, error) {
	mainExecutor = strings.TrimSpace(mainExecutor)
	if mainExecutor == "" {
		return nil, apperrors.NewValidationError("main executor is required", nil)
	}
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	update := repository.TicketUpdate{
		MainExecutor: &mainExecutor,
		Executor:     &executor,
		AssignedAt:   &now,
	}
	if err := s.store.UpdateTicket(ctx, id, update); err != nil {
		return nil, apperrors.MapError(err)
	}
	if details.Status == domain.TicketStatusOpen {
		if err := s.store.SetStatus(ctx, id, domain.TicketStatusAssigned, now); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: id,
		Actor:    actor,
		Payload: events.TicketAssignedPayload{
			MainExecutor: mainExecutor,
			Executor:     executor,
		},
	})
	return s.getDetails(ctx, id)
}

// AddComment appends an attributed note to the ticket's comment log.
func (s *TicketService) AddComment(ctx context.Context, actor string, id int64, note string) (*domain.TicketDetails, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.NewValidationError("comment text is required", nil)
	}
	if _, err := s.getDetails(ctx, id); err != nil {
		return nil, err
	}
	if err := s.appendComment(ctx, actor, id, note); err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventCommentAdded,
		TicketID: id,
		Actor:    actor,
		Payload:  events.CommentAddedPayload{Preview: stringPreview(note, 120)},
	})
	return s.getDetails(ctx, id)
}

// Patch applies a partial field update, used by the integration API.
func (s *TicketService) Patch(ctx context.Context, id int64, update repository.TicketUpdate) (*domain.TicketDetails, error) {
	if update.Empty() {
		return nil, apperrors.NewValidationError("no updatable fields provided", nil)
	}
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureCommentsExtend(details.Comments, update.Comments); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTicket(ctx, id, update); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.getDetails(ctx, id)
}

// Search filters tickets by free text, owner, status and creation date range.
func (s *TicketService) Search(ctx context.Context, filter repository.SearchFilter) ([]domain.TicketDetails, error) {
	tickets, err := s.store.SearchTickets(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Stats returns ticket and user aggregates.
func (s *TicketService) Stats(ctx context.Context) (*repository.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return stats, nil
}

// History reconstructs the status timeline from the lifecycle timestamps.
func (s *TicketService) History(ctx context.Context, id int64) ([]StatusHistoryEntry, error) {
	details, err := s.getDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	entries := []StatusHistoryEntry{
		{Status: domain.TicketStatusOpen, Timestamp: details.CreatedAt},
	}
	steps := []struct {
		status domain.TicketStatus
		at     *time.Time
	}{
		{domain.TicketStatusInProgress, details.InProgressAt},
		{domain.TicketStatusAssigned, details.AssignedAt},
		{domain.TicketStatusDone, details.CompletedAt},
		{domain.TicketStatusArchived, details.ArchivedAt},
	}
	for _, step := range steps {
		if step.at != nil {
			entries = append(entries, StatusHistoryEntry{Status: step.status, Timestamp: *step.at})
		}
	}
	sortHistory(entries)
	return entries, nil
}

func (s *TicketService) getDetails(ctx context.Context, id int64) (*domain.TicketDetails, error) {
	details, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if details == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return details, nil
}

func (s *TicketService) appendComment(ctx context.Context, actor string, id int64, note string) error {
	entry := fmt.Sprintf("\n[%s]: %s (%s)", actor, note, s.now().Format(commentTimeLayout))
	if err := s.store.AppendComment(ctx, id, entry); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now()
	_ = s.dispatcher.Publish(ctx, event)
}

func sortHistory(entries []StatusHistoryEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Timestamp.Before(entries[j-1].Timestamp); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func stringPreview(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "..."
}

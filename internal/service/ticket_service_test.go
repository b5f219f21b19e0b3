package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/config"
	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/session"
	"github.com/itsupport/helpdesk/internal/storage"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// fakeStore is an in-memory repository.Store mirroring the SQL backends'
// write semantics: lifecycle timestamps fill once, comments append.
type fakeStore struct {
	nextID   int64
	tickets  map[int64]*domain.Ticket
	users    map[int64]*domain.User
	contacts map[int64]*domain.Contact
	now      func() time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		tickets:  make(map[int64]*domain.Ticket),
		users:    make(map[int64]*domain.User),
		contacts: make(map[int64]*domain.Contact),
		now:      time.Now,
	}
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close()                     {}

func (f *fakeStore) UpsertUser(_ context.Context, user *domain.User) error {
	user.ID = f.nextID
	f.nextID++
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByLogin(context.Context, string) (*domain.User, error) { return nil, nil }
func (f *fakeStore) GetUserByID(context.Context, int64) (*domain.User, error)     { return nil, nil }

func (f *fakeStore) ListUsers(context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, *user)
	}
	return users, nil
}

func (f *fakeStore) GetContact(_ context.Context, userID int64) (*domain.Contact, error) {
	return f.contacts[userID], nil
}

func (f *fakeStore) UpsertContact(_ context.Context, userID int64, phone, email string) error {
	f.contacts[userID] = &domain.Contact{UserID: userID, Phone: phone, Email: email}
	return nil
}

func (f *fakeStore) ListProblemTypes(context.Context) ([]domain.ProblemType, error) {
	return nil, nil
}
func (f *fakeStore) ListCabinets(context.Context) ([]domain.Cabinet, error) { return nil, nil }
func (f *fakeStore) AddCabinet(context.Context, string, int64) error        { return nil }

func (f *fakeStore) CreateTicket(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = f.nextID
	f.nextID++
	ticket.CreatedAt = f.now()
	stored := *ticket
	f.tickets[ticket.ID] = &stored
	return nil
}

func (f *fakeStore) GetTicket(_ context.Context, id int64) (*domain.TicketDetails, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, nil
	}
	return &domain.TicketDetails{Ticket: *ticket}, nil
}

func (f *fakeStore) ListUserTickets(_ context.Context, userID int64) ([]domain.TicketDetails, error) {
	var out []domain.TicketDetails
	for _, ticket := range f.tickets {
		if ticket.UserID == userID {
			out = append(out, domain.TicketDetails{Ticket: *ticket})
		}
	}
	return out, nil
}

func (f *fakeStore) ListTickets(_ context.Context, limit, offset int) ([]domain.TicketDetails, error) {
	var out []domain.TicketDetails
	for _, ticket := range f.tickets {
		if ticket.Status != domain.TicketStatusArchived {
			out = append(out, domain.TicketDetails{Ticket: *ticket})
		}
	}
	return out, nil
}

func (f *fakeStore) CountTickets(context.Context) (int64, error) {
	var total int64
	for _, ticket := range f.tickets {
		if ticket.Status != domain.TicketStatusArchived {
			total++
		}
	}
	return total, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id int64, status domain.TicketStatus, at time.Time) error {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil
	}
	ticket.Status = status
	switch status.TimestampColumn() {
	case "in_progress_at":
		if ticket.InProgressAt == nil {
			ticket.InProgressAt = &at
		}
	case "assigned_at":
		if ticket.AssignedAt == nil {
			ticket.AssignedAt = &at
		}
	case "completed_at":
		if ticket.CompletedAt == nil {
			ticket.CompletedAt = &at
		}
	case "archived_at":
		if ticket.ArchivedAt == nil {
			ticket.ArchivedAt = &at
		}
	}
	return nil
}

func (f *fakeStore) UpdateTicket(_ context.Context, id int64, update repository.TicketUpdate) error {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil
	}
	if update.Description != nil {
		ticket.Description = *update.Description
	}
	if update.Comments != nil {
		ticket.Comments = *update.Comments
	}
	if update.MainExecutor != nil {
		ticket.MainExecutor = *update.MainExecutor
	}
	if update.Executor != nil {
		ticket.Executor = *update.Executor
	}
	if update.AssignedAt != nil && ticket.AssignedAt == nil {
		ticket.AssignedAt = update.AssignedAt
	}
	return nil
}

func (f *fakeStore) UpdateTicketFiles(_ context.Context, id int64, files []string) error {
	f.tickets[id].Files = files
	return nil
}

func (f *fakeStore) AppendComment(_ context.Context, id int64, entry string) error {
	f.tickets[id].Comments += entry
	return nil
}

func (f *fakeStore) SearchTickets(context.Context, repository.SearchFilter) ([]domain.TicketDetails, error) {
	return nil, nil
}

func (f *fakeStore) Stats(context.Context) (*repository.Stats, error) {
	return &repository.Stats{TotalTickets: int64(len(f.tickets))}, nil
}

func testTicketService(t *testing.T) (*TicketService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	root := t.TempDir()
	manager, err := storage.NewManager(config.UploadsConfig{
		PublicDir:    root,
		StagingDir:   root + "/staging",
		TicketsDir:   root + "/tickets",
		LegacyTmpDir: root + "/temp_uploads",
		MaxFiles:     7,
		MaxBatchSize: 1 << 20,
	}, zap.NewNop())
	require.NoError(t, err)
	return NewTicketService(store, manager, nil, zap.NewNop()), store
}

func owner() *session.Principal {
	return &session.Principal{UserID: 1, Login: "ivanov", Role: domain.RoleUser}
}

func admin() *session.Principal {
	return &session.Principal{UserID: 2, Login: "petrov", Role: domain.RoleAdmin}
}

func textUpload(name string) storage.Upload {
	return storage.Upload{
		Name: name,
		Size: 4,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte("data"))), nil
		},
	}
}

func createTicket(t *testing.T, svc *TicketService, p *session.Principal) *domain.TicketDetails {
	t.Helper()
	details, err := svc.Create(context.Background(), p, TicketCreateInput{
		Cabinet:       "203",
		ProblemTypeID: 1,
		Description:   "не работает принтер",
	})
	require.NoError(t, err)
	return details
}

func TestCreateValidates(t *testing.T) {
	svc, _ := testTicketService(t)

	_, err := svc.Create(context.Background(), owner(), TicketCreateInput{Cabinet: "203"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestCreateStoresContactAndFiles(t *testing.T) {
	svc, store := testTicketService(t)

	details, err := svc.Create(context.Background(), owner(), TicketCreateInput{
		Cabinet:       "203",
		ProblemTypeID: 1,
		Description:   "не работает принтер",
		Phone:         "+7 999 111-22-33",
		Email:         "ivanov@school.ru",
		Uploads:       []storage.Upload{textUpload("photo.png")},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, details.Status)
	require.Len(t, details.Files, 1)
	assert.True(t, strings.HasPrefix(details.Files[0], "tickets/"))

	contact := store.contacts[1]
	require.NotNil(t, contact)
	assert.Equal(t, "+7 999 111-22-33", contact.Phone)
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _ := testTicketService(t)
	details := createTicket(t, svc, owner())

	_, _, err := svc.Get(context.Background(), &session.Principal{UserID: 99, Role: domain.RoleUser}, details.ID)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)

	_, canEdit, err := svc.Get(context.Background(), admin(), details.ID)
	require.NoError(t, err)
	assert.True(t, canEdit)

	_, canEdit, err = svc.Get(context.Background(), owner(), details.ID)
	require.NoError(t, err)
	assert.True(t, canEdit, "open tickets are owner-editable")
}

func TestGetMissingTicket(t *testing.T) {
	svc, _ := testTicketService(t)

	_, _, err := svc.Get(context.Background(), admin(), 404)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestUpdateOwnBlockedAfterWorkStarts(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	text := "дополнение"
	_, err := svc.UpdateOwn(context.Background(), owner(), details.ID, &text, nil)
	require.NoError(t, err)

	_, err = svc.UpdateOwn(context.Background(), owner(), details.ID, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	require.NoError(t, store.SetStatus(context.Background(), details.ID, domain.TicketStatusInProgress, time.Now()))

	more := "ещё дополнение"
	_, err = svc.UpdateOwn(context.Background(), owner(), details.ID, &more, nil)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestListExcludesArchivedFromTotal(t *testing.T) {
	svc, store := testTicketService(t)
	first := createTicket(t, svc, owner())
	createTicket(t, svc, owner())

	require.NoError(t, store.SetStatus(context.Background(), first.ID, domain.TicketStatusArchived, time.Now()))

	tickets, total, err := svc.List(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
	assert.Equal(t, int64(1), total)
}

func TestCommentsAreAppendOnly(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	_, err := svc.AddComment(context.Background(), "petrov", details.ID, "уточните кабинет")
	require.NoError(t, err)
	noted := store.tickets[details.ID].Comments
	require.Contains(t, noted, "[petrov]: уточните кабинет")

	// an owner edit cannot blank the log or rewrite the admin's note
	empty := ""
	_, err = svc.UpdateOwn(context.Background(), owner(), details.ID, nil, &empty)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
	assert.Equal(t, noted, store.tickets[details.ID].Comments)

	rewritten := "совсем другой текст"
	_, err = svc.UpdateOwn(context.Background(), owner(), details.ID, nil, &rewritten)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)

	extended := noted + "\nдобавил фото принтера"
	updated, err := svc.UpdateOwn(context.Background(), owner(), details.ID, nil, &extended)
	require.NoError(t, err)
	assert.Equal(t, extended, updated.Comments)

	// the integration API PATCH is held to the same rule
	_, err = svc.Patch(context.Background(), details.ID, repository.TicketUpdate{Comments: &noted})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
	assert.Equal(t, extended, store.tickets[details.ID].Comments)
}

func TestChangeStatusRejectsUnchangedAndRecordsComment(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	_, err := svc.ChangeStatus(context.Background(), "petrov", details.ID, domain.TicketStatusOpen, "")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = svc.ChangeStatus(context.Background(), "petrov", details.ID, domain.TicketStatus("nonsense"), "")
	require.Error(t, err)

	updated, err := svc.ChangeStatus(context.Background(), "petrov", details.ID, domain.TicketStatusInProgress, "взял в работу")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.NotNil(t, updated.InProgressAt)
	assert.Contains(t, updated.Comments, "[petrov]: взял в работу")

	// the first in-progress timestamp survives later transitions
	first := *store.tickets[details.ID].InProgressAt
	_, err = svc.ChangeStatus(context.Background(), "petrov", details.ID, domain.TicketStatusDeferred, "")
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), "petrov", details.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, first, *store.tickets[details.ID].InProgressAt)
}

func TestAssignMovesOpenTicket(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	updated, err := svc.Assign(context.Background(), "petrov", details.ID, "Сидоров", "Кузнецов")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, updated.Status)
	assert.Equal(t, "Сидоров", updated.MainExecutor)
	assert.Equal(t, "Кузнецов", updated.Executor)
	require.NotNil(t, updated.AssignedAt)

	// reassignment keeps the original assignment time
	first := *store.tickets[details.ID].AssignedAt
	updated, err = svc.Assign(context.Background(), "petrov", details.ID, "Фёдоров", "")
	require.NoError(t, err)
	assert.Equal(t, "Фёдоров", updated.MainExecutor)
	assert.Equal(t, first, *updated.AssignedAt)
	assert.Equal(t, domain.TicketStatusAssigned, updated.Status)
}

func TestAssignRequiresMainExecutor(t *testing.T) {
	svc, _ := testTicketService(t)
	details := createTicket(t, svc, owner())

	_, err := svc.Assign(context.Background(), "petrov", details.ID, "  ", "")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestAddFilesEnforcesCap(t *testing.T) {
	svc, _ := testTicketService(t)
	details := createTicket(t, svc, owner())

	uploads := make([]storage.Upload, 6)
	for i := range uploads {
		uploads[i] = textUpload("a.txt")
	}
	updated, err := svc.AddFiles(context.Background(), owner(), details.ID, uploads)
	require.NoError(t, err)
	assert.Len(t, updated.Files, 6)

	_, err = svc.AddFiles(context.Background(), owner(), details.ID,
		[]storage.Upload{textUpload("b.txt"), textUpload("c.txt")})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	updated, err = svc.AddFiles(context.Background(), owner(), details.ID, []storage.Upload{textUpload("b.txt")})
	require.NoError(t, err)
	assert.Len(t, updated.Files, 7)
}

func TestDeleteFileBySuffix(t *testing.T) {
	svc, _ := testTicketService(t)
	details := createTicket(t, svc, owner())

	updated, err := svc.AddFiles(context.Background(), owner(), details.ID, []storage.Upload{textUpload("doc.txt")})
	require.NoError(t, err)
	require.Len(t, updated.Files, 1)

	name := updated.Files[0][strings.LastIndex(updated.Files[0], "/")+1:]
	updated, err = svc.DeleteFile(context.Background(), owner(), details.ID, name)
	require.NoError(t, err)
	assert.Empty(t, updated.Files)

	_, err = svc.DeleteFile(context.Background(), owner(), details.ID, "missing.txt")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestAddCommentFormat(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return fixed }

	_, err := svc.AddComment(context.Background(), "petrov", details.ID, "уточните кабинет")
	require.NoError(t, err)
	assert.Equal(t, "\n[petrov]: уточните кабинет (01.04.2026 12:00)", store.tickets[details.ID].Comments)

	_, err = svc.AddComment(context.Background(), "petrov", details.ID, "   ")
	require.Error(t, err)
}

func TestHistoryOrdering(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	base := store.tickets[details.ID].CreatedAt
	assigned := base.Add(time.Hour)
	completed := base.Add(3 * time.Hour)
	store.tickets[details.ID].AssignedAt = &assigned
	store.tickets[details.ID].CompletedAt = &completed

	history, err := svc.History(context.Background(), details.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.TicketStatusOpen, history[0].Status)
	assert.Equal(t, domain.TicketStatusAssigned, history[1].Status)
	assert.Equal(t, domain.TicketStatusDone, history[2].Status)
}

func TestPatchRequiresFields(t *testing.T) {
	svc, store := testTicketService(t)
	details := createTicket(t, svc, owner())

	_, err := svc.Patch(context.Background(), details.ID, repository.TicketUpdate{})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	executor := "Сидоров"
	updated, err := svc.Patch(context.Background(), details.ID, repository.TicketUpdate{MainExecutor: &executor})
	require.NoError(t, err)
	assert.Equal(t, "Сидоров", updated.MainExecutor)
	assert.Equal(t, "Сидоров", store.tickets[details.ID].MainExecutor)
}

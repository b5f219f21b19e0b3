package repository

import (
	"context"
	"time"

	"github.com/itsupport/helpdesk/internal/domain"
)

// TicketUpdate carries optional field changes applied in one statement. Nil
// fields are left untouched. AssignedAt is filled only on first assignment.
type TicketUpdate struct {
	Description  *string
	Comments     *string
	MainExecutor *string
	Executor     *string
	AssignedAt   *time.Time
}

// Empty reports whether the update carries no changes.
func (u TicketUpdate) Empty() bool {
	return u.Description == nil && u.Comments == nil && u.MainExecutor == nil &&
		u.Executor == nil && u.AssignedAt == nil
}

// SearchFilter captures ticket search parameters. Archived tickets are always
// excluded.
type SearchFilter struct {
	Term      string
	UserID    *int64
	Status    *domain.TicketStatus
	StartDate string
	EndDate   string
	Limit     int
}

// StatusCount is one row of the per-status aggregate.
type StatusCount struct {
	Status domain.TicketStatus `json:"status"`
	Count  int64               `json:"count"`
}

// TypeCount is one row of the per-problem-type aggregate.
type TypeCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Stats aggregates ticket and user counters for the admin dashboard.
type Stats struct {
	TotalTickets int64         `json:"totalTickets"`
	ByStatus     []StatusCount `json:"byStatus"`
	ByType       []TypeCount   `json:"byType"`
	UserCount    int64         `json:"userCount"`
}

// Store is the persistence interface shared by both SQL backends. Lookup
// misses return nil (or an empty slice), never an error; mutations of a
// missing row surface the backend's no-rows error.
type Store interface {
	// Schema bootstrap and reference seeding, run once at startup.
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()

	// Users.
	UpsertUser(ctx context.Context, user *domain.User) error
	GetUserByLogin(ctx context.Context, login string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	// Contacts.
	GetContact(ctx context.Context, userID int64) (*domain.Contact, error)
	UpsertContact(ctx context.Context, userID int64, phone, email string) error

	// Reference data.
	ListProblemTypes(ctx context.Context) ([]domain.ProblemType, error)
	ListCabinets(ctx context.Context) ([]domain.Cabinet, error)
	AddCabinet(ctx context.Context, number string, addedBy int64) error

	// Tickets.
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error
	GetTicket(ctx context.Context, id int64) (*domain.TicketDetails, error)
	ListUserTickets(ctx context.Context, userID int64) ([]domain.TicketDetails, error)
	ListTickets(ctx context.Context, limit, offset int) ([]domain.TicketDetails, error)
	CountTickets(ctx context.Context) (int64, error)
	SetStatus(ctx context.Context, id int64, status domain.TicketStatus, at time.Time) error
	UpdateTicket(ctx context.Context, id int64, update TicketUpdate) error
	UpdateTicketFiles(ctx context.Context, id int64, files []string) error
	AppendComment(ctx context.Context, id int64, entry string) error
	SearchTickets(ctx context.Context, filter SearchFilter) ([]domain.TicketDetails, error)
	Stats(ctx context.Context) (*Stats, error)
}

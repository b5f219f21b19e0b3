package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. The literal values are
// part of the external contract and are transmitted as-is.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "открыта"
	TicketStatusInProgress   TicketStatus = "в работе"
	TicketStatusAssigned     TicketStatus = "назначена"
	TicketStatusNeedsDetails TicketStatus = "требует уточнения"
	TicketStatusDeferred     TicketStatus = "отложена"
	TicketStatusDone         TicketStatus = "выполнена"
	TicketStatusClosed       TicketStatus = "закрыта"
	TicketStatusRejected     TicketStatus = "отказана"
	TicketStatusArchived     TicketStatus = "архив"
)

// AllStatuses lists every accepted status value in presentation order.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusAssigned,
	TicketStatusNeedsDetails,
	TicketStatusDeferred,
	TicketStatusDone,
	TicketStatusClosed,
	TicketStatusRejected,
	TicketStatusArchived,
}

// Valid reports whether s is one of the nine defined statuses.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

var statusTexts = map[TicketStatus]string{
	TicketStatusOpen:         "Открыта",
	TicketStatusInProgress:   "В работе",
	TicketStatusAssigned:     "Назначена",
	TicketStatusNeedsDetails: "Требует уточнения",
	TicketStatusDeferred:     "Отложена",
	TicketStatusDone:         "Выполнена",
	TicketStatusClosed:       "Закрыта",
	TicketStatusRejected:     "Отказана",
	TicketStatusArchived:     "Архив",
}

// Text returns the display name for the status.
func (s TicketStatus) Text() string {
	if text, ok := statusTexts[s]; ok {
		return text
	}
	return string(s)
}

// TimestampColumn returns the lifecycle timestamp column filled the first time
// a ticket enters this status, or "" when the status has no timestamp side
// effect.
func (s TicketStatus) TimestampColumn() string {
	switch s {
	case TicketStatusInProgress:
		return "in_progress_at"
	case TicketStatusAssigned:
		return "assigned_at"
	case TicketStatusDone, TicketStatusClosed:
		return "completed_at"
	case TicketStatusArchived:
		return "archived_at"
	}
	return ""
}

// EditableByOwner reports whether a ticket in this status may still be edited
// by its owner.
func (s TicketStatus) EditableByOwner() bool {
	return s == TicketStatusOpen || s == TicketStatusNeedsDetails
}

// Ticket is the aggregate for trouble reports.
type Ticket struct {
	ID            int64
	UserID        int64
	ProblemTypeID int64
	Cabinet       string
	Phone         string
	Email         string
	Description   string
	Comments      string
	Status        TicketStatus
	MainExecutor  string
	Executor      string
	Files         []string
	CreatedAt     time.Time
	AssignedAt    *time.Time
	InProgressAt  *time.Time
	CompletedAt   *time.Time
	ArchivedAt    *time.Time
}

// TicketDetails is a ticket joined with its reference rows for read views.
type TicketDetails struct {
	Ticket
	ProblemTypeName string
	UserLogin       string
	UserFullName    string
	UserGroups      []string
	ContactPhone    string
	ContactEmail    string
}

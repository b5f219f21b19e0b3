package dto

import (
	"fmt"
	"time"

	"github.com/itsupport/helpdesk/internal/domain"
)

// UpdateTicketRequest payload for owner edits. Nil fields are left untouched.
type UpdateTicketRequest struct {
	Description *string `json:"description"`
	Comments    *string `json:"comments"`
}

// StatusChangeRequest payload.
type StatusChangeRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// AssignRequest payload.
type AssignRequest struct {
	MainExecutor string `json:"main_executor"`
	Executor     string `json:"executor"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// PatchTicketRequest payload for the integration API. Only these fields may
// be patched; nil means untouched.
type PatchTicketRequest struct {
	MainExecutor *string `json:"main_executor"`
	Executor     *string `json:"executor"`
	Comments     *string `json:"comments"`
	Description  *string `json:"description"`
}

// TicketSummary is a listing row with the description cut for display.
type TicketSummary struct {
	ID           int64               `json:"id"`
	Status       domain.TicketStatus `json:"status"`
	StatusText   string              `json:"status_text"`
	Cabinet      string              `json:"cabinet"`
	ProblemType  string              `json:"problem_type"`
	Description  string              `json:"description"`
	UserLogin    string              `json:"user_login"`
	UserFullName string              `json:"user_full_name"`
	MainExecutor string              `json:"main_executor,omitempty"`
	Executor     string              `json:"executor,omitempty"`
	FileCount    int                 `json:"file_count"`
	CreatedAt    time.Time           `json:"created_at"`
}

// TicketDetail is the full ticket view.
type TicketDetail struct {
	ID           int64               `json:"id"`
	Status       domain.TicketStatus `json:"status"`
	StatusText   string              `json:"status_text"`
	Cabinet      string              `json:"cabinet"`
	ProblemType  string              `json:"problem_type"`
	Description  string              `json:"description"`
	Comments     string              `json:"comments"`
	Phone        string              `json:"phone,omitempty"`
	Email        string              `json:"email,omitempty"`
	UserLogin    string              `json:"user_login"`
	UserFullName string              `json:"user_full_name"`
	UserGroups   []string            `json:"user_groups,omitempty"`
	MainExecutor string              `json:"main_executor,omitempty"`
	Executor     string              `json:"executor,omitempty"`
	Files        []string            `json:"files"`
	CreatedAt    time.Time           `json:"created_at"`
	AssignedAt   *time.Time          `json:"assigned_at,omitempty"`
	InProgressAt *time.Time          `json:"in_progress_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	ArchivedAt   *time.Time          `json:"archived_at,omitempty"`
	CanEdit      bool                `json:"can_edit"`
}

const summaryDescriptionLimit = 200

// Summary converts a joined ticket row into the listing shape.
func Summary(t domain.TicketDetails) TicketSummary {
	return TicketSummary{
		ID:           t.ID,
		Status:       t.Status,
		StatusText:   t.Status.Text(),
		Cabinet:      t.Cabinet,
		ProblemType:  t.ProblemTypeName,
		Description:  truncate(t.Description, summaryDescriptionLimit),
		UserLogin:    t.UserLogin,
		UserFullName: t.UserFullName,
		MainExecutor: t.MainExecutor,
		Executor:     t.Executor,
		FileCount:    len(t.Files),
		CreatedAt:    t.CreatedAt,
	}
}

// Summaries converts a slice of joined rows.
func Summaries(tickets []domain.TicketDetails) []TicketSummary {
	out := make([]TicketSummary, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, Summary(ticket))
	}
	return out
}

// Link is a HAL style hyperlink.
type Link struct {
	Href string `json:"href"`
}

// APISummary is a listing entry for the integration API, with navigation
// links alongside the ticket fields.
type APISummary struct {
	TicketSummary
	Links map[string]Link `json:"_links"`
}

// APIDetail is the full integration API view. FileURLs carries the served
// paths of the attachments.
type APIDetail struct {
	TicketDetail
	FileURLs []string        `json:"file_urls"`
	Links    map[string]Link `json:"_links"`
}

func ticketLinks(id int64) map[string]Link {
	base := fmt.Sprintf("/api/v1/tickets/%d", id)
	return map[string]Link{
		"self":    {Href: base},
		"status":  {Href: base + "/status"},
		"history": {Href: base + "/history"},
	}
}

// APISummaries converts joined rows into integration API listing entries.
func APISummaries(tickets []domain.TicketDetails) []APISummary {
	out := make([]APISummary, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, APISummary{
			TicketSummary: Summary(ticket),
			Links:         ticketLinks(ticket.ID),
		})
	}
	return out
}

// FromDetail decorates a full view for the integration API.
func FromDetail(t *domain.TicketDetails) APIDetail {
	detail := Detail(t, false)
	urls := make([]string, 0, len(detail.Files))
	for _, file := range detail.Files {
		urls = append(urls, "/"+file)
	}
	return APIDetail{TicketDetail: detail, FileURLs: urls, Links: ticketLinks(detail.ID)}
}

// Detail converts a joined row into the full view.
func Detail(t *domain.TicketDetails, canEdit bool) TicketDetail {
	files := t.Files
	if files == nil {
		files = []string{}
	}
	phone := t.Phone
	if phone == "" {
		phone = t.ContactPhone
	}
	email := t.Email
	if email == "" {
		email = t.ContactEmail
	}
	return TicketDetail{
		ID:           t.ID,
		Status:       t.Status,
		StatusText:   t.Status.Text(),
		Cabinet:      t.Cabinet,
		ProblemType:  t.ProblemTypeName,
		Description:  t.Description,
		Comments:     t.Comments,
		Phone:        phone,
		Email:        email,
		UserLogin:    t.UserLogin,
		UserFullName: t.UserFullName,
		UserGroups:   t.UserGroups,
		MainExecutor: t.MainExecutor,
		Executor:     t.Executor,
		Files:        files,
		CreatedAt:    t.CreatedAt,
		AssignedAt:   t.AssignedAt,
		InProgressAt: t.InProgressAt,
		CompletedAt:  t.CompletedAt,
		ArchivedAt:   t.ArchivedAt,
		CanEdit:      canEdit,
	}
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "..."
}

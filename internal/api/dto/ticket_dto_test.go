package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsupport/helpdesk/internal/domain"
)

func TestSummaryTruncatesDescription(t *testing.T) {
	long := strings.Repeat("ж", 300)
	summary := Summary(domain.TicketDetails{Ticket: domain.Ticket{
		ID:          1,
		Status:      domain.TicketStatusOpen,
		Description: long,
	}})

	assert.Equal(t, 203, len([]rune(summary.Description)), "200 runes plus ellipsis")
	assert.True(t, strings.HasSuffix(summary.Description, "..."))
	assert.Equal(t, "Открыта", summary.StatusText)

	short := Summary(domain.TicketDetails{Ticket: domain.Ticket{Description: "короткое"}})
	assert.Equal(t, "короткое", short.Description)
}

func TestDetailFallsBackToContact(t *testing.T) {
	detail := Detail(&domain.TicketDetails{
		Ticket:       domain.Ticket{ID: 1, Status: domain.TicketStatusOpen},
		ContactPhone: "+7 999 000-00-00",
		ContactEmail: "user@school.ru",
	}, false)

	assert.Equal(t, "+7 999 000-00-00", detail.Phone)
	assert.Equal(t, "user@school.ru", detail.Email)
	assert.NotNil(t, detail.Files, "files serialize as [] not null")

	withOwn := Detail(&domain.TicketDetails{
		Ticket:       domain.Ticket{Phone: "+7 111", Email: "own@school.ru"},
		ContactPhone: "+7 222",
	}, true)
	assert.Equal(t, "+7 111", withOwn.Phone)
	assert.Equal(t, "own@school.ru", withOwn.Email)
	assert.True(t, withOwn.CanEdit)
}

func TestAPIViewsCarryLinks(t *testing.T) {
	entries := APISummaries([]domain.TicketDetails{
		{Ticket: domain.Ticket{ID: 7, Status: domain.TicketStatusOpen}},
	})
	assert.Len(t, entries, 1)
	assert.Equal(t, "/api/v1/tickets/7", entries[0].Links["self"].Href)
	assert.Equal(t, "/api/v1/tickets/7/status", entries[0].Links["status"].Href)
	assert.Equal(t, "/api/v1/tickets/7/history", entries[0].Links["history"].Href)

	detail := FromDetail(&domain.TicketDetails{
		Ticket: domain.Ticket{
			ID:     7,
			Status: domain.TicketStatusOpen,
			Files:  []string{"tickets/2026-03-14/7/scan.pdf"},
		},
	})
	assert.Equal(t, []string{"/tickets/2026-03-14/7/scan.pdf"}, detail.FileURLs)
	assert.Equal(t, "/api/v1/tickets/7", detail.Links["self"].Href)
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketStatusValid(t *testing.T) {
	for _, status := range AllStatuses {
		assert.True(t, status.Valid(), "status %q should be valid", status)
	}
	assert.False(t, TicketStatus("").Valid())
	assert.False(t, TicketStatus("открыт").Valid())
	assert.False(t, TicketStatus("done").Valid())
}

func TestTicketStatusTimestampColumn(t *testing.T) {
	cases := map[TicketStatus]string{
		TicketStatusOpen:         "",
		TicketStatusInProgress:   "in_progress_at",
		TicketStatusAssigned:     "assigned_at",
		TicketStatusNeedsDetails: "",
		TicketStatusDeferred:     "",
		TicketStatusDone:         "completed_at",
		TicketStatusClosed:       "completed_at",
		TicketStatusRejected:     "",
		TicketStatusArchived:     "archived_at",
	}
	for status, column := range cases {
		assert.Equal(t, column, status.TimestampColumn(), "status %q", status)
	}
}

func TestTicketStatusEditableByOwner(t *testing.T) {
	assert.True(t, TicketStatusOpen.EditableByOwner())
	assert.True(t, TicketStatusNeedsDetails.EditableByOwner())

	for _, status := range []TicketStatus{
		TicketStatusInProgress, TicketStatusAssigned, TicketStatusDeferred,
		TicketStatusDone, TicketStatusClosed, TicketStatusRejected, TicketStatusArchived,
	} {
		assert.False(t, status.EditableByOwner(), "status %q", status)
	}
}

func TestTicketStatusText(t *testing.T) {
	assert.Equal(t, "Открыта", TicketStatusOpen.Text())
	assert.Equal(t, "Требует уточнения", TicketStatusNeedsDetails.Text())
	assert.Equal(t, "произвольно", TicketStatus("произвольно").Text())
}

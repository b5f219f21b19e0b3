package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/events"
)

// StartNotifier subscribes an audit-log handler to every ticket event.
func StartNotifier(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	handler := func(_ context.Context, event events.Event) error {
		logger.Info("ticket event",
			zap.String("type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.String("actor", event.Actor),
			zap.Any("payload", event.Payload))
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventCommentAdded,
	} {
		dispatcher.Subscribe(eventType, handler)
	}
}

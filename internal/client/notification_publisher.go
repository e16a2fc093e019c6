package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/memberhq/be-board-approvals/internal/repository"
)

// NotificationPublisher publishes board workflow events to NATS for
// consumption by the notifications service (which fans out to email and
// in-app channels).
//
// Subject convention: notifications.membership.<event_type>
// Event types: application_submitted, board_review_required, first_approval,
//              fully_approved, application_rejected
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt the workflow.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection yields a publisher that silently drops events,
// which keeps local development working without a broker.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishApplicationEvent publishes a membership application event.
// Subject: notifications.membership.<eventType>
func (p *NotificationPublisher) PublishApplicationEvent(_ context.Context, eventType string, app *repository.Application, recipients []string, payload map[string]any) {
	if p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		Recipients:   recipients,
		ResourceType: "application",
		ResourceID:   app.ID,
		Severity:     "info",
		Category:     "board_review",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.membership.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("application_id", app.ID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("application_id", app.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

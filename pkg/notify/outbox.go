// Package notify implements the email and notification collaborators by publishing
// JSON messages for the delivery subsystems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/autorules/pkg/events"
	"github.com/dukex/autorules/pkg/models"
)

// Metadata keys set on every outbox message.
const (
	KindMetadataKey      = "kind"
	RecipientMetadataKey = "recipient"
)

type outbox struct {
	publisher message.Publisher
	topic     string
	kind      string
	logger    *slog.Logger
}

func (o *outbox) publish(ctx context.Context, recipient string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", o.kind, err)
	}

	msg := message.NewMessage(watermill.NewULID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set(KindMetadataKey, o.kind)
	msg.Metadata.Set(RecipientMetadataKey, recipient)
	msg.Metadata.Set(events.EventMetadataKey, recipient)

	if err := o.publisher.Publish(o.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", o.kind, err)
	}

	o.logger.DebugContext(ctx, "Queued outbox message", "kind", o.kind, "topic", o.topic, "message_id", msg.UUID)

	return nil
}

// BusMailer queues emails on events.EmailTopic.
type BusMailer struct {
	outbox
}

func NewBusMailer(publisher message.Publisher, logger *slog.Logger) *BusMailer {
	return &BusMailer{outbox{
		publisher: publisher,
		topic:     events.EmailTopic,
		kind:      "email",
		logger:    logger.With("module", "notify"),
	}}
}

func (m *BusMailer) SendEmail(ctx context.Context, email models.Email) error {
	return m.publish(ctx, email.To, email)
}

// BusNotifier queues in-app notifications on events.NotificationTopic.
type BusNotifier struct {
	outbox
}

func NewBusNotifier(publisher message.Publisher, logger *slog.Logger) *BusNotifier {
	return &BusNotifier{outbox{
		publisher: publisher,
		topic:     events.NotificationTopic,
		kind:      "notification",
		logger:    logger.With("module", "notify"),
	}}
}

func (n *BusNotifier) CreateNotification(ctx context.Context, notification models.Notification) error {
	return n.publish(ctx, notification.UserID, notification)
}

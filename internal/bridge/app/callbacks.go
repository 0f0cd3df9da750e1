package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/platform/messagebroker"
)

// NATS subjects carrying bridge events for host applications.
const (
	SubjectIncomingMessage = "twilio.sms.incoming"
	SubjectOutgoingMessage = "twilio.sms.outgoing"
	SubjectMessageStatus   = "twilio.sms.status"
)

// MessageCallback is something invokable with a persisted message. The
// bridge only needs the capability, never its representation: an
// in-process function and a broker publisher are interchangeable.
type MessageCallback interface {
	Invoke(ctx context.Context, msg *domain.Message, tenantID string) error
}

// CallbackFunc adapts a plain function to MessageCallback.
type CallbackFunc func(ctx context.Context, msg *domain.Message, tenantID string) error

func (f CallbackFunc) Invoke(ctx context.Context, msg *domain.Message, tenantID string) error {
	return f(ctx, msg, tenantID)
}

// NATSCallback publishes the message to a NATS subject so out-of-process
// consumers receive it.
type NATSCallback struct {
	publisher messagebroker.Publisher
	subject   string
	logger    *slog.Logger
}

func NewNATSCallback(publisher messagebroker.Publisher, subject string, logger *slog.Logger) *NATSCallback {
	return &NATSCallback{publisher: publisher, subject: subject, logger: logger}
}

// messageEvent is the payload published for message callbacks.
type messageEvent struct {
	TenantID string          `json:"tenant_id,omitempty"`
	Message  *domain.Message `json:"message"`
}

func (c *NATSCallback) Invoke(ctx context.Context, msg *domain.Message, tenantID string) error {
	data, err := json.Marshal(messageEvent{TenantID: tenantID, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}
	if err := c.publisher.Publish(ctx, c.subject, data); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Published message event", "subject", c.subject, "sid", msg.SID)
	return nil
}

// StatusEvent is published on SubjectMessageStatus whenever a delivery
// status callback lands.
type StatusEvent struct {
	AccountSID string `json:"account_sid"`
	SID        string `json:"sid"`
	Status     string `json:"status"`
	TenantID   string `json:"tenant_id,omitempty"`
}

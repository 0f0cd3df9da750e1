package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/platform/messagebroker"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

// TwilioMessageAPI is the slice of the Twilio client the message service
// depends on.
type TwilioMessageAPI interface {
	CreateMessage(ctx context.Context, accountSID, authToken string, form url.Values) (*twilio.MessageResource, error)
	GetMessage(ctx context.Context, accountSID, authToken, sid string) (*twilio.MessageResource, error)
}

// SendMessageInput describes one outbound send. From falls back to the
// configured default sender; Credentials override the provider-resolved
// account for one-off multi-tenant sends.
type SendMessageInput struct {
	To          string
	Body        string
	From        string
	Credentials *domain.TenantCredentials
}

// MessageService implements the programmatic message surface: sending,
// inbound ingestion, status updates and the indexed read paths.
type MessageService struct {
	repo              domain.MessageRepository
	client            TwilioMessageAPI
	creds             CredentialProvider
	defaultFrom       string
	statusCallbackURL string
	incomingCallback  MessageCallback
	outgoingCallback  MessageCallback
	publisher         messagebroker.Publisher
	logger            *slog.Logger
}

// MessageServiceOption configures optional collaborators.
type MessageServiceOption func(*MessageService)

// WithIncomingCallback registers a callback invoked with every newly
// ingested inbound message.
func WithIncomingCallback(cb MessageCallback) MessageServiceOption {
	return func(s *MessageService) { s.incomingCallback = cb }
}

// WithOutgoingCallback registers a callback invoked with every message
// successfully submitted to Twilio.
func WithOutgoingCallback(cb MessageCallback) MessageServiceOption {
	return func(s *MessageService) { s.outgoingCallback = cb }
}

// WithEventPublisher enables NATS status events.
func WithEventPublisher(pub messagebroker.Publisher) MessageServiceOption {
	return func(s *MessageService) { s.publisher = pub }
}

func NewMessageService(
	repo domain.MessageRepository,
	client TwilioMessageAPI,
	creds CredentialProvider,
	defaultFrom string,
	statusCallbackURL string,
	logger *slog.Logger,
	opts ...MessageServiceOption,
) *MessageService {
	s := &MessageService{
		repo:              repo,
		client:            client,
		creds:             creds,
		defaultFrom:       defaultFrom,
		statusCallbackURL: statusCallbackURL,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send submits one message to Twilio and persists the returned resource.
// The caller never retries here: provider failures surface as-is.
func (s *MessageService) Send(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	from := input.From
	if from == "" {
		from = s.defaultFrom
	}
	if from == "" {
		return nil, domain.ErrMissingFromNumber
	}

	creds := input.Credentials
	if creds == nil {
		var err error
		creds, err = s.creds.Resolve(ctx, from)
		if err != nil {
			return nil, err
		}
	}

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", input.To)
	form.Set("Body", input.Body)
	form.Set("StatusCallback", s.statusCallbackURL)

	res, err := s.client.CreateMessage(ctx, creds.AccountSID, creds.AuthToken, form)
	if err != nil {
		messagesSentCounter.WithLabelValues("provider_error").Inc()
		s.logger.ErrorContext(ctx, "Twilio message create failed",
			"error", err, "to", RedactNumber(input.To))
		return nil, err
	}

	msg := messageFromResource(res, creds.TenantID)
	if err := s.repo.Create(ctx, msg); err != nil {
		messagesSentCounter.WithLabelValues("store_error").Inc()
		s.logger.ErrorContext(ctx, "Failed to persist sent message",
			"error", err, "sid", msg.SID)
		return nil, err
	}
	messagesSentCounter.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "Message sent", "sid", msg.SID, "status", msg.Status)

	s.invokeCallback(ctx, s.outgoingCallback, msg, creds.TenantID)
	return msg, nil
}

// IngestIncoming fetches the canonical message resource for sid (the
// webhook payload is partial) and persists it, deduplicating on
// (account_sid, sid) so a replayed webhook is a no-op. The registered
// incoming callback fires only for first-time inserts.
func (s *MessageService) IngestIncoming(ctx context.Context, creds *domain.TenantCredentials, sid string) (*domain.Message, bool, error) {
	res, err := s.client.GetMessage(ctx, creds.AccountSID, creds.AuthToken, sid)
	if err != nil {
		inboundMessagesCounter.WithLabelValues("error").Inc()
		return nil, false, err
	}

	msg := messageFromResource(res, creds.TenantID)
	inserted, err := s.repo.CreateIfAbsent(ctx, msg)
	if err != nil {
		inboundMessagesCounter.WithLabelValues("error").Inc()
		return nil, false, err
	}
	if !inserted {
		inboundMessagesCounter.WithLabelValues("duplicate").Inc()
		s.logger.InfoContext(ctx, "Ignoring replayed inbound message", "sid", sid)
		return msg, false, nil
	}
	inboundMessagesCounter.WithLabelValues("inserted").Inc()
	s.logger.InfoContext(ctx, "Inbound message ingested",
		"sid", msg.SID, "from", RedactNumber(msg.From))

	s.invokeCallback(ctx, s.incomingCallback, msg, creds.TenantID)
	return msg, true, nil
}

// UpdateStatus applies a delivery status callback to the stored message.
// Statuses are not checked for monotonicity: Twilio's delivery is
// at-least-once and unordered, and the last write wins.
func (s *MessageService) UpdateStatus(ctx context.Context, creds *domain.TenantCredentials, sid, status string) error {
	err := s.repo.UpdateStatus(ctx, creds.AccountSID, sid, status)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			statusUpdatesCounter.WithLabelValues("not_found").Inc()
		} else {
			statusUpdatesCounter.WithLabelValues("error").Inc()
		}
		return err
	}
	statusUpdatesCounter.WithLabelValues("applied").Inc()

	if s.publisher != nil {
		event := StatusEvent{
			AccountSID: creds.AccountSID,
			SID:        sid,
			Status:     status,
			TenantID:   creds.TenantID,
		}
		if data, err := json.Marshal(event); err == nil {
			if err := s.publisher.Publish(ctx, SubjectMessageStatus, data); err != nil {
				s.logger.WarnContext(ctx, "Failed to publish status event", "error", err, "sid", sid)
			}
		}
	}
	return nil
}

func (s *MessageService) List(ctx context.Context, accountSID string, limit int) ([]*domain.Message, error) {
	return s.repo.List(ctx, accountSID, limit)
}

func (s *MessageService) ListIncoming(ctx context.Context, accountSID string, limit int) ([]*domain.Message, error) {
	return s.repo.ListByDirection(ctx, accountSID, domain.DirectionInbound, limit)
}

func (s *MessageService) ListOutgoing(ctx context.Context, accountSID string, limit int) ([]*domain.Message, error) {
	return s.repo.ListByDirection(ctx, accountSID, domain.DirectionOutboundAPI, limit)
}

func (s *MessageService) GetBySID(ctx context.Context, accountSID, sid string) (*domain.Message, error) {
	return s.repo.GetBySID(ctx, accountSID, sid)
}

func (s *MessageService) GetByTo(ctx context.Context, accountSID, to string, limit int) ([]*domain.Message, error) {
	return s.repo.ListByTo(ctx, accountSID, to, limit)
}

func (s *MessageService) GetByFrom(ctx context.Context, accountSID, from string, limit int) ([]*domain.Message, error) {
	return s.repo.ListByFrom(ctx, accountSID, from, limit)
}

func (s *MessageService) GetByCounterparty(ctx context.Context, accountSID, counterparty string, limit int) ([]*domain.Message, error) {
	return s.repo.ListByCounterparty(ctx, accountSID, counterparty, limit)
}

// invokeCallback runs a registered callback best-effort: a failing
// consumer must not fail the webhook or the send, and Twilio-side
// redelivery would be deduplicated anyway.
func (s *MessageService) invokeCallback(ctx context.Context, cb MessageCallback, msg *domain.Message, tenantID string) {
	if cb == nil {
		return
	}
	if err := cb.Invoke(ctx, msg, tenantID); err != nil {
		s.logger.ErrorContext(ctx, "Message callback failed", "error", err, "sid", msg.SID)
	}
}

// messageFromResource maps a Twilio message resource onto the stored
// model, deriving the counterparty from the direction.
func messageFromResource(res *twilio.MessageResource, tenantID string) *domain.Message {
	return &domain.Message{
		AccountSID:          res.AccountSID,
		SID:                 res.SID,
		Direction:           res.Direction,
		From:                res.From,
		To:                  res.To,
		Counterparty:        domain.DeriveCounterparty(res.Direction, res.From, res.To),
		Body:                res.Body,
		Status:              res.Status,
		DateCreated:         res.DateCreated,
		DateSent:            res.DateSent,
		DateUpdated:         res.DateUpdated,
		ErrorCode:           res.ErrorCode,
		ErrorMessage:        res.ErrorMessage,
		Price:               res.Price,
		PriceUnit:           res.PriceUnit,
		NumSegments:         res.NumSegments,
		NumMedia:            res.NumMedia,
		MessagingServiceSID: res.MessagingServiceSID,
		APIVersion:          res.APIVersion,
		URI:                 res.URI,
		SubresourceURIs:     res.SubresourceURIs,
		TenantID:            tenantID,
	}
}

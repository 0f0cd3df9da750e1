package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/relaysms/twilio-bridge/internal/bridge/app"
	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

// emptyTwiML tells Twilio "no auto-reply" in its expected markup.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// channelPrefixes are channel qualifiers Twilio prepends to numbers on
// non-SMS channels; they are stripped before credential resolution.
var channelPrefixes = []string{"whatsapp:"}

// WebhookHandler serves the two Twilio webhook endpoints. Each request is
// single-pass and stateless: it either fully completes (persist plus
// optional callback) or aborts before persisting.
type WebhookHandler struct {
	messages           *app.MessageService
	creds              app.CredentialProvider
	validateSignatures bool
	// Absolute endpoint URLs as Twilio sees them; the signature covers
	// the full request URL.
	statusCallbackURL  string
	incomingMessageURL string
	logger             *slog.Logger
}

func NewWebhookHandler(
	messages *app.MessageService,
	creds app.CredentialProvider,
	validateSignatures bool,
	statusCallbackURL string,
	incomingMessageURL string,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		messages:           messages,
		creds:              creds,
		validateSignatures: validateSignatures,
		statusCallbackURL:  statusCallbackURL,
		incomingMessageURL: incomingMessageURL,
		logger:             logger.With("handler", "twilio_webhook"),
	}
}

// HandleMessageStatus handles POST {prefix}/message-status delivery
// status callbacks.
func (h *WebhookHandler) HandleMessageStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "endpoint", "message-status")

	if err := r.ParseForm(); err != nil {
		logger.WarnContext(ctx, "Failed to parse status callback form", "error", err)
		webhookRequestsCounter.WithLabelValues("message-status", "invalid").Inc()
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	sid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	if sid == "" || status == "" {
		logger.WarnContext(ctx, "Status callback missing required fields",
			"has_sid", sid != "", "has_status", status != "")
		webhookRequestsCounter.WithLabelValues("message-status", "invalid").Inc()
		http.Error(w, "MessageSid and MessageStatus are required", http.StatusBadRequest)
		return
	}

	to := stripChannelPrefix(r.PostForm.Get("To"))
	creds, ok := h.resolveAndAuthenticate(w, r, logger, "message-status", to, h.statusCallbackURL)
	if !ok {
		return
	}

	if err := h.messages.UpdateStatus(ctx, creds, sid, status); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			// Not surfaced to the caller: 200 keeps Twilio from retrying
			// and avoids confirming which sids exist.
			logger.WarnContext(ctx, "Status callback for unknown sid", "sid", sid, "status", status)
			webhookRequestsCounter.WithLabelValues("message-status", "ok").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
		logger.ErrorContext(ctx, "Failed to apply status update", "error", err, "sid", sid)
		webhookRequestsCounter.WithLabelValues("message-status", "error").Inc()
		http.Error(w, "Failed to process status callback", http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "Message status updated", "sid", sid, "status", status)
	webhookRequestsCounter.WithLabelValues("message-status", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

// HandleIncomingMessage handles POST {prefix}/incoming-message callbacks.
// The webhook payload is partial; the canonical resource is re-fetched
// from Twilio before persisting.
func (h *WebhookHandler) HandleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "endpoint", "incoming-message")

	if err := r.ParseForm(); err != nil {
		logger.WarnContext(ctx, "Failed to parse incoming message form", "error", err)
		webhookRequestsCounter.WithLabelValues("incoming-message", "invalid").Inc()
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	sid := r.PostForm.Get("SmsSid")
	if sid == "" {
		sid = r.PostForm.Get("MessageSid")
	}
	if sid == "" {
		logger.WarnContext(ctx, "Incoming message callback missing message sid")
		webhookRequestsCounter.WithLabelValues("incoming-message", "invalid").Inc()
		http.Error(w, "SmsSid or MessageSid is required", http.StatusBadRequest)
		return
	}

	to := stripChannelPrefix(r.PostForm.Get("To"))
	creds, ok := h.resolveAndAuthenticate(w, r, logger, "incoming-message", to, h.incomingMessageURL)
	if !ok {
		return
	}

	msg, inserted, err := h.messages.IngestIncoming(ctx, creds, sid)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to ingest incoming message", "error", err, "sid", sid)
		webhookRequestsCounter.WithLabelValues("incoming-message", "error").Inc()
		http.Error(w, "Failed to process incoming message", http.StatusInternalServerError)
		return
	}
	if inserted {
		logger.InfoContext(ctx, "Incoming message stored",
			"sid", msg.SID, "from", app.RedactNumber(msg.From))
		webhookRequestsCounter.WithLabelValues("incoming-message", "ok").Inc()
	} else {
		webhookRequestsCounter.WithLabelValues("incoming-message", "duplicate").Inc()
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// resolveAndAuthenticate runs the shared middle of both pipelines:
// credential resolution by destination number, then signature validation
// with the resolved auth token. It writes the error response itself and
// returns ok=false when the request must not proceed.
func (h *WebhookHandler) resolveAndAuthenticate(
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	endpoint string,
	toNumber string,
	fullURL string,
) (*domain.TenantCredentials, bool) {
	ctx := r.Context()

	creds, err := h.creds.Resolve(ctx, toNumber)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTenant) {
			logger.WarnContext(ctx, "Webhook for unrecognized destination number",
				"number", app.RedactNumber(toNumber))
			webhookRequestsCounter.WithLabelValues(endpoint, "unknown_tenant").Inc()
			http.Error(w, "Unknown destination number", http.StatusNotFound)
			return nil, false
		}
		logger.ErrorContext(ctx, "Credential resolution failed", "error", err)
		webhookRequestsCounter.WithLabelValues(endpoint, "error").Inc()
		http.Error(w, "Failed to resolve credentials", http.StatusInternalServerError)
		return nil, false
	}

	if h.validateSignatures {
		// Twilio signs the raw form values, channel prefixes included.
		signature := r.Header.Get(twilio.SignatureHeader)
		if !twilio.ValidateSignature(creds.AuthToken, signature, fullURL, r.PostForm) {
			// The computed signature is deliberately not logged.
			logger.WarnContext(ctx, "Webhook signature validation failed",
				"signature_present", signature != "")
			signatureFailuresCounter.Inc()
			webhookRequestsCounter.WithLabelValues(endpoint, "forbidden").Inc()
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return nil, false
		}
	}

	return creds, true
}

func stripChannelPrefix(number string) string {
	for _, prefix := range channelPrefixes {
		if strings.HasPrefix(number, prefix) {
			return strings.TrimPrefix(number, prefix)
		}
	}
	return number
}

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/relaysms/twilio-bridge/internal/bridge/app"
	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/bridge/middleware"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

// APIHandler serves the authenticated management API: sending messages,
// querying the message store and managing phone numbers.
type APIHandler struct {
	messages     *app.MessageService
	phoneNumbers *app.PhoneNumberService
	// defaultAccountSID scopes queries when the caller does not pass
	// account_sid explicitly; empty in multi-tenant deployments.
	defaultAccountSID string
	validate          *validator.Validate
	logger            *slog.Logger
}

func NewAPIHandler(
	messages *app.MessageService,
	phoneNumbers *app.PhoneNumberService,
	defaultAccountSID string,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		messages:          messages,
		phoneNumbers:      phoneNumbers,
		defaultAccountSID: defaultAccountSID,
		validate:          validate,
		logger:            logger.With("handler", "api"),
	}
}

// RegisterRoutes mounts the management API on r. Authentication
// middleware is applied by the caller.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSendMessage)
	r.Get("/messages", h.handleListMessages)
	r.Get("/messages/{sid}", h.handleGetMessage)
	r.Post("/phone-numbers", h.handleProvisionNumber)
	r.Post("/phone-numbers/{sid}/sms-handler", h.handleRegisterSmsHandler)
}

func (h *APIHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	msg, err := h.messages.Send(ctx, app.SendMessageInput{
		To:          req.To,
		Body:        req.Body,
		From:        req.From,
		Credentials: req.overrideCredentials(),
	})
	if err != nil {
		h.respondSendError(w, logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (h *APIHandler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountSID, ok := h.requestAccountSID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	var (
		msgs []*domain.Message
		err  error
	)
	q := r.URL.Query()
	switch {
	case q.Get("counterparty") != "":
		msgs, err = h.messages.GetByCounterparty(ctx, accountSID, q.Get("counterparty"), limit)
	case q.Get("to") != "":
		msgs, err = h.messages.GetByTo(ctx, accountSID, q.Get("to"), limit)
	case q.Get("from") != "":
		msgs, err = h.messages.GetByFrom(ctx, accountSID, q.Get("from"), limit)
	case q.Get("direction") == domain.DirectionInbound:
		msgs, err = h.messages.ListIncoming(ctx, accountSID, limit)
	case q.Get("direction") == domain.DirectionOutboundAPI:
		msgs, err = h.messages.ListOutgoing(ctx, accountSID, limit)
	case q.Get("direction") != "":
		respondError(w, http.StatusBadRequest, "direction must be 'inbound' or 'outbound-api'")
		return
	default:
		msgs, err = h.messages.List(ctx, accountSID, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list messages", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	respondJSON(w, http.StatusOK, MessageListResponse{Messages: msgs})
}

func (h *APIHandler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountSID, ok := h.requestAccountSID(w, r)
	if !ok {
		return
	}

	sid := chi.URLParam(r, "sid")
	msg, err := h.messages.GetBySID(ctx, accountSID, sid)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			respondError(w, http.StatusNotFound, "Message not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to get message", "error", err, "sid", sid)
		respondError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (h *APIHandler) handleProvisionNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req ProvisionNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	pn, err := h.phoneNumbers.Provision(ctx, req.overrideCredentials(), req.PhoneNumber)
	if err != nil {
		h.respondProviderError(w, logger, r, err, "Failed to provision phone number")
		return
	}
	respondJSON(w, http.StatusCreated, pn)
}

func (h *APIHandler) handleRegisterSmsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req RegisterSmsHandlerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if err := h.validate.StructCtx(ctx, req); err != nil {
			respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
			return
		}
	}

	sid := chi.URLParam(r, "sid")
	pn, err := h.phoneNumbers.RegisterIncomingSmsHandler(ctx, req.overrideCredentials(), sid)
	if err != nil {
		h.respondProviderError(w, logger, r, err, "Failed to register SMS handler")
		return
	}
	respondJSON(w, http.StatusOK, pn)
}

func (h *APIHandler) respondSendError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingFromNumber):
		respondError(w, http.StatusBadRequest, "Missing from number and no default configured")
	case errors.Is(err, domain.ErrUnknownTenant):
		respondError(w, http.StatusNotFound, "Sender number not associated with any tenant")
	case errors.Is(err, domain.ErrDuplicateMessage):
		respondError(w, http.StatusConflict, "Message with this sid already exists")
	default:
		h.respondProviderError(w, logger, r, err, "Failed to send message")
	}
}

func (h *APIHandler) respondProviderError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error, fallback string) {
	var apiErr *twilio.APIError
	if errors.As(err, &apiErr) {
		logger.WarnContext(r.Context(), "Twilio rejected the request", "status_code", apiErr.Status)
		respondError(w, http.StatusBadGateway, "Twilio request failed")
		return
	}
	if errors.Is(err, domain.ErrPhoneNumberNotFound) {
		respondError(w, http.StatusNotFound, "Phone number not found")
		return
	}
	if errors.Is(err, domain.ErrUnknownTenant) {
		respondError(w, http.StatusNotFound, "Number not associated with any tenant")
		return
	}
	logger.ErrorContext(r.Context(), fallback, "error", err)
	respondError(w, http.StatusInternalServerError, fallback)
}

// requestAccountSID picks the account scope for a read. An account_sid
// bound into the caller's token wins: an explicit query parameter naming
// a different account is rejected with 403 so one tenant's token can
// never read another tenant's rows. Unbound tokens (single-tenant
// deployments, operator tokens) fall back to the query parameter or the
// configured default account.
func (h *APIHandler) requestAccountSID(w http.ResponseWriter, r *http.Request) (string, bool) {
	requested := r.URL.Query().Get("account_sid")

	user, ok := r.Context().Value(middleware.AuthenticatedUserContextKey).(middleware.AuthenticatedUser)
	if ok && user.AccountSID != "" {
		if requested != "" && requested != user.AccountSID {
			h.logger.WarnContext(r.Context(), "Cross-account query rejected",
				"userID", user.ID, "requested_account_sid", requested)
			respondError(w, http.StatusForbidden, "account_sid does not match the authenticated account")
			return "", false
		}
		return user.AccountSID, true
	}

	if requested == "" {
		requested = h.defaultAccountSID
	}
	if requested == "" {
		respondError(w, http.StatusBadRequest, "account_sid is required")
		return "", false
	}
	return requested, true
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, ErrorResponse{Error: message})
}

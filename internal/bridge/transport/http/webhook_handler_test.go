package http

import (
	"context"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relaysms/twilio-bridge/internal/bridge/app"
	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

const (
	testStatusURL   = "https://example.com/twilio/message-status"
	testIncomingURL = "https://example.com/twilio/incoming-message"
	testAuthToken   = "token-abc"
)

type stubMessageRepo struct {
	mock.Mock
}

func (m *stubMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *stubMessageRepo) CreateIfAbsent(ctx context.Context, msg *domain.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *stubMessageRepo) UpdateStatus(ctx context.Context, accountSID, sid, status string) error {
	return m.Called(ctx, accountSID, sid, status).Error(0)
}

func (m *stubMessageRepo) List(ctx context.Context, accountSID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, accountSID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *stubMessageRepo) ListByDirection(ctx context.Context, accountSID, direction string, limit int) ([]*domain.Message, error) {
	return nil, nil
}

func (m *stubMessageRepo) GetBySID(ctx context.Context, accountSID, sid string) (*domain.Message, error) {
	return nil, domain.ErrMessageNotFound
}

func (m *stubMessageRepo) ListByTo(ctx context.Context, accountSID, to string, limit int) ([]*domain.Message, error) {
	return nil, nil
}

func (m *stubMessageRepo) ListByFrom(ctx context.Context, accountSID, from string, limit int) ([]*domain.Message, error) {
	return nil, nil
}

func (m *stubMessageRepo) ListByCounterparty(ctx context.Context, accountSID, counterparty string, limit int) ([]*domain.Message, error) {
	return nil, nil
}

type stubTwilioAPI struct {
	mock.Mock
}

func (m *stubTwilioAPI) CreateMessage(ctx context.Context, accountSID, authToken string, form url.Values) (*twilio.MessageResource, error) {
	args := m.Called(ctx, accountSID, authToken, form)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*twilio.MessageResource), args.Error(1)
}

func (m *stubTwilioAPI) GetMessage(ctx context.Context, accountSID, authToken, sid string) (*twilio.MessageResource, error) {
	args := m.Called(ctx, accountSID, authToken, sid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*twilio.MessageResource), args.Error(1)
}

type resolverFunc func(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error)

func (f resolverFunc) Resolve(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error) {
	return f(ctx, phoneNumber)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWebhookFixture(t *testing.T, validateSignatures bool) (*WebhookHandler, *stubMessageRepo, *stubTwilioAPI) {
	t.Helper()
	repo := new(stubMessageRepo)
	api := new(stubTwilioAPI)
	creds := app.StaticCredentials{AccountSID: "AC123", AuthToken: testAuthToken}
	svc := app.NewMessageService(repo, api, creds, "+15550001111", testStatusURL, discardLogger())
	h := NewWebhookHandler(svc, creds, validateSignatures, testStatusURL, testIncomingURL, discardLogger())
	return h, repo, api
}

// signedRequest builds a form POST carrying a valid X-Twilio-Signature
// for the given endpoint URL.
func signedRequest(t *testing.T, fullURL string, form url.Values) *nethttp.Request {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodPost, fullURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(twilio.SignatureHeader, twilio.ComputeSignature(testAuthToken, fullURL, form))
	return req
}

func TestHandleMessageStatus_Valid(t *testing.T) {
	h, repo, _ := newWebhookFixture(t, true)

	form := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"To":            {"+15005550006"},
	}
	repo.On("UpdateStatus", mock.Anything, "AC123", "SM123", "delivered").Return(nil).Once()

	rec := httptest.NewRecorder()
	h.HandleMessageStatus(rec, signedRequest(t, testStatusURL, form))

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestHandleMessageStatus_MissingFields(t *testing.T) {
	h, repo, _ := newWebhookFixture(t, true)

	form := url.Values{"MessageSid": {"SM123"}} // no MessageStatus
	rec := httptest.NewRecorder()
	h.HandleMessageStatus(rec, signedRequest(t, testStatusURL, form))

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestHandleMessageStatus_ForgedSignature(t *testing.T) {
	h, repo, _ := newWebhookFixture(t, true)

	form := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"To":            {"+15005550006"},
	}
	req := httptest.NewRequest(nethttp.MethodPost, testStatusURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(twilio.SignatureHeader, "bm90IGEgcmVhbCBzaWduYXR1cmU=")

	rec := httptest.NewRecorder()
	h.HandleMessageStatus(rec, req)

	assert.Equal(t, nethttp.StatusForbidden, rec.Code)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestHandleMessageStatus_MissingSignature(t *testing.T) {
	h, repo, _ := newWebhookFixture(t, true)

	form := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
	}
	req := httptest.NewRequest(nethttp.MethodPost, testStatusURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.HandleMessageStatus(rec, req)

	assert.Equal(t, nethttp.StatusForbidden, rec.Code)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestHandleMessageStatus_UnknownSidReturnsOK(t *testing.T) {
	h, repo, _ := newWebhookFixture(t, true)

	form := url.Values{
		"MessageSid":    {"SMmissing"},
		"MessageStatus": {"delivered"},
	}
	repo.On("UpdateStatus", mock.Anything, "AC123", "SMmissing", "delivered").
		Return(domain.ErrMessageNotFound).Once()

	rec := httptest.NewRecorder()
	h.HandleMessageStatus(rec, signedRequest(t, testStatusURL, form))

	// 200 keeps Twilio from retrying a callback we can never apply.
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestHandleMessageStatus_UnknownTenant(t *testing.T) {
	repo := new(stubMessageRepo)
	api := new(stubTwilioAPI)
	resolver := resolverFunc(func(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error) {
		return nil, domain.ErrUnknownTenant
	})
	svc := app.NewMessageService(repo, api, resolver, "", testStatusURL, discardLogger())
	h := NewWebhookHandler(svc, resolver, true, testStatusURL, testIncomingURL, discardLogger())

	form := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"To":            {"+19999999999"},
	}
	req := httptest.NewRequest(nethttp.MethodPost, testStatusURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.HandleMessageStatus(rec, req)

	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestHandleIncomingMessage_Valid(t *testing.T) {
	h, repo, api := newWebhookFixture(t, true)

	form := url.Values{
		"SmsSid": {"SM999"},
		"From":   {"+15550002222"},
		"To":     {"+15005550006"},
		"Body":   {"hello"},
	}
	api.On("GetMessage", mock.Anything, "AC123", testAuthToken, "SM999").
		Return(&twilio.MessageResource{
			AccountSID: "AC123",
			SID:        "SM999",
			From:       "+15550002222",
			To:         "+15005550006",
			Body:       "hello",
			Status:     "received",
			Direction:  domain.DirectionInbound,
		}, nil).Once()
	repo.On("CreateIfAbsent", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(true, nil).Once()

	rec := httptest.NewRecorder()
	h.HandleIncomingMessage(rec, signedRequest(t, testIncomingURL, form))

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`, rec.Body.String())
	repo.AssertExpectations(t)
	api.AssertExpectations(t)
}

func TestHandleIncomingMessage_Replay(t *testing.T) {
	h, repo, api := newWebhookFixture(t, true)

	form := url.Values{
		"MessageSid": {"SM999"},
		"To":         {"+15005550006"},
	}
	api.On("GetMessage", mock.Anything, "AC123", testAuthToken, "SM999").
		Return(&twilio.MessageResource{SID: "SM999", Direction: domain.DirectionInbound}, nil).Once()
	repo.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Once()

	rec := httptest.NewRecorder()
	h.HandleIncomingMessage(rec, signedRequest(t, testIncomingURL, form))

	// Redelivery still gets a 200 and the empty response document.
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response></Response>")
}

func TestHandleIncomingMessage_MissingSid(t *testing.T) {
	h, repo, api := newWebhookFixture(t, true)

	form := url.Values{"From": {"+15550002222"}}
	rec := httptest.NewRecorder()
	h.HandleIncomingMessage(rec, signedRequest(t, testIncomingURL, form))

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	api.AssertNotCalled(t, "GetMessage")
	repo.AssertNotCalled(t, "CreateIfAbsent")
}

func TestHandleIncomingMessage_WhatsAppPrefix(t *testing.T) {
	repo := new(stubMessageRepo)
	api := new(stubTwilioAPI)

	var resolvedNumber string
	resolver := resolverFunc(func(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error) {
		resolvedNumber = phoneNumber
		return &domain.TenantCredentials{AccountSID: "AC123", AuthToken: testAuthToken}, nil
	})
	svc := app.NewMessageService(repo, api, resolver, "", testStatusURL, discardLogger())
	h := NewWebhookHandler(svc, resolver, true, testStatusURL, testIncomingURL, discardLogger())

	// Twilio signs the raw form values, channel prefix included; only
	// credential resolution sees the bare number.
	form := url.Values{
		"MessageSid": {"SM999"},
		"From":       {"whatsapp:+15550002222"},
		"To":         {"whatsapp:+15005550006"},
	}
	api.On("GetMessage", mock.Anything, "AC123", testAuthToken, "SM999").
		Return(&twilio.MessageResource{SID: "SM999", Direction: domain.DirectionInbound}, nil).Once()
	repo.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(true, nil).Once()

	rec := httptest.NewRecorder()
	h.HandleIncomingMessage(rec, signedRequest(t, testIncomingURL, form))

	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "+15005550006", resolvedNumber)
}

func TestHandleIncomingMessage_SignatureValidationDisabled(t *testing.T) {
	h, repo, api := newWebhookFixture(t, false)

	form := url.Values{
		"MessageSid": {"SM999"},
		"To":         {"+15005550006"},
	}
	api.On("GetMessage", mock.Anything, "AC123", testAuthToken, "SM999").
		Return(&twilio.MessageResource{SID: "SM999", Direction: domain.DirectionInbound}, nil).Once()
	repo.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(true, nil).Once()

	// No signature header at all.
	req := httptest.NewRequest(nethttp.MethodPost, testIncomingURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.HandleIncomingMessage(rec, req)

	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

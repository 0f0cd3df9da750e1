package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relaysms/twilio-bridge/internal/bridge/app"
	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/bridge/middleware"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

func newAPIFixture(t *testing.T) (*chi.Mux, *stubMessageRepo, *stubTwilioAPI) {
	t.Helper()
	repo := new(stubMessageRepo)
	api := new(stubTwilioAPI)
	creds := app.StaticCredentials{AccountSID: "AC123", AuthToken: testAuthToken}
	messages := app.NewMessageService(repo, api, creds, "+15550001111", testStatusURL, discardLogger())

	handler := NewAPIHandler(messages, nil, "AC123", validator.New(), discardLogger())
	r := chi.NewRouter()
	r.Route("/api/v1", handler.RegisterRoutes)
	return r, repo, api
}

func TestAPISendMessage(t *testing.T) {
	router, repo, api := newAPIFixture(t)

	api.On("CreateMessage", mock.Anything, "AC123", testAuthToken, mock.Anything).
		Return(&twilio.MessageResource{
			AccountSID: "AC123",
			SID:        "SM123",
			To:         "+15005550006",
			Status:     "queued",
			Direction:  domain.DirectionOutboundAPI,
		}, nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	body := `{"to": "+15005550006", "body": "hello"}`
	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, nethttp.StatusCreated, rec.Code)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "SM123", msg.SID)
	repo.AssertExpectations(t)
	api.AssertExpectations(t)
}

func TestAPISendMessage_ValidationError(t *testing.T) {
	router, repo, _ := newAPIFixture(t)

	body := `{"to": "+15005550006"}` // body missing
	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "Create")
}

func TestAPISendMessage_TwilioFailureMapsToBadGateway(t *testing.T) {
	router, _, api := newAPIFixture(t)

	api.On("CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &twilio.APIError{Status: 400, Body: `{"code": 21211}`}).Once()

	body := `{"to": "bogus", "body": "hello"}`
	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusBadGateway, rec.Code)
}

func TestAPIGetMessage_NotFound(t *testing.T) {
	router, _, _ := newAPIFixture(t)

	// stubMessageRepo.GetBySID always reports ErrMessageNotFound.
	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages/SMmissing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Message not found", resp.Error)
}

func withAuthenticatedUser(req *nethttp.Request, user middleware.AuthenticatedUser) *nethttp.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.AuthenticatedUserContextKey, user))
}

func TestAPIListMessages_TokenBoundAccount(t *testing.T) {
	router, repo, _ := newAPIFixture(t)

	repo.On("List", mock.Anything, "AC999", 0).Return([]*domain.Message{}, nil).Once()

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages", nil)
	req = withAuthenticatedUser(req, middleware.AuthenticatedUser{ID: "user-1", AccountSID: "AC999"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Queries run against the token's account, not the configured default.
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestAPIListMessages_CrossAccountQueryRejected(t *testing.T) {
	router, repo, _ := newAPIFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages?account_sid=AC123", nil)
	req = withAuthenticatedUser(req, middleware.AuthenticatedUser{ID: "user-1", AccountSID: "AC999"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusForbidden, rec.Code)
	repo.AssertNotCalled(t, "List")
}

func TestAPIGetMessage_CrossAccountQueryRejected(t *testing.T) {
	router, _, _ := newAPIFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages/SM123?account_sid=AC123", nil)
	req = withAuthenticatedUser(req, middleware.AuthenticatedUser{ID: "user-1", AccountSID: "AC999"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusForbidden, rec.Code)
}

func TestAPIListMessages_BadDirection(t *testing.T) {
	router, _, _ := newAPIFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages?direction=sideways", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestAPIListMessages_BadLimit(t *testing.T) {
	router, _, _ := newAPIFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages?limit=-5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

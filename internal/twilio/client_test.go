package twilio

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_CreateMessage(t *testing.T) {
	var capturedAuthUser, capturedAuthPass string
	var capturedForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		var ok bool
		capturedAuthUser, capturedAuthPass, ok = r.BasicAuth()
		require.True(t, ok)

		require.NoError(t, r.ParseForm())
		capturedForm = r.PostForm

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(MessageResource{
			AccountSID: "AC123",
			SID:        "SM123",
			From:       "+15550001111",
			To:         "+15005550006",
			Body:       "hello",
			Status:     "queued",
			Direction:  "outbound-api",
		})
	}))
	defer server.Close()

	client := NewClientWithBaseURL(newTestLogger(), server.Client(), server.URL)

	form := url.Values{}
	form.Set("From", "+15550001111")
	form.Set("To", "+15005550006")
	form.Set("Body", "hello")

	msg, err := client.CreateMessage(context.Background(), "AC123", "token-abc", form)
	require.NoError(t, err)

	assert.Equal(t, "AC123", capturedAuthUser)
	assert.Equal(t, "token-abc", capturedAuthPass)
	assert.Equal(t, "+15005550006", capturedForm.Get("To"))
	assert.Equal(t, "hello", capturedForm.Get("Body"))
	assert.Equal(t, "SM123", msg.SID)
	assert.Equal(t, "queued", msg.Status)
}

func TestClient_GetMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/Accounts/AC123/Messages/SM999.json", r.URL.Path)
		json.NewEncoder(w).Encode(MessageResource{
			AccountSID: "AC123",
			SID:        "SM999",
			Direction:  "inbound",
			Status:     "received",
		})
	}))
	defer server.Close()

	client := NewClientWithBaseURL(newTestLogger(), server.Client(), server.URL)

	msg, err := client.GetMessage(context.Background(), "AC123", "token-abc", "SM999")
	require.NoError(t, err)
	assert.Equal(t, "SM999", msg.SID)
	assert.Equal(t, "inbound", msg.Direction)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code": 20003, "message": "Authenticate"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(newTestLogger(), server.Client(), server.URL)

	_, err := client.GetMessage(context.Background(), "AC123", "bad-token", "SM1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "20003")
}

func TestClient_ListIncomingPhoneNumbersByNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/IncomingPhoneNumbers.json", r.URL.Path)
		assert.Equal(t, "+15005550006", r.URL.Query().Get("PhoneNumber"))
		json.NewEncoder(w).Encode(map[string]any{
			"incoming_phone_numbers": []IncomingPhoneNumberResource{
				{SID: "PN123", PhoneNumber: "+15005550006"},
			},
		})
	}))
	defer server.Close()

	client := NewClientWithBaseURL(newTestLogger(), server.Client(), server.URL)

	numbers, err := client.ListIncomingPhoneNumbersByNumber(context.Background(), "AC123", "token-abc", "+15005550006")
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, "PN123", numbers[0].SID)
}

func TestClient_RecordsRequestDuration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MessageResource{SID: "SM1"})
	}))
	defer server.Close()

	client := NewClientWithBaseURL(newTestLogger(), server.Client(), server.URL)

	_, err := client.GetMessage(context.Background(), "AC123", "token-abc", "SM1")
	require.NoError(t, err)

	// Every API call lands one observation on its method label.
	assert.GreaterOrEqual(t,
		testutil.CollectAndCount(requestDurationSeconds, "twilio_bridge_twilio_request_duration_seconds"), 1)
}

func TestClient_UpdateSmsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Accounts/AC123/IncomingPhoneNumbers/PN123.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://example.com/twilio/incoming-message", r.PostForm.Get("SmsUrl"))
		json.NewEncoder(w).Encode(IncomingPhoneNumberResource{
			SID:    "PN123",
			SmsURL: r.PostForm.Get("SmsUrl"),
		})
	}))
	defer server.Close()

	client := NewClientWithBaseURL(newTestLogger(), server.Client(), server.URL)

	pn, err := client.UpdateSmsURL(context.Background(), "AC123", "token-abc", "PN123", "https://example.com/twilio/incoming-message")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/twilio/incoming-message", pn.SmsURL)
}

package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultBaseURL is the Twilio REST API root this client talks to.
const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

var requestDurationSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "twilio_bridge",
		Name:      "twilio_request_duration_seconds",
		Help:      "Duration of outbound Twilio API requests.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method"},
)

// APIError is returned when Twilio responds with a non-2xx status.
// Callers must not retry automatically; Twilio-side redelivery and
// host-level retry policy own that decision.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio API error: status %d: %s", e.Status, e.Body)
}

// Client issues authenticated requests against the Twilio REST API.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Twilio API client. A nil httpClient gets a default
// with a 15s timeout.
func NewClient(logger *slog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		logger:     logger.With("provider", "twilio"),
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
	}
}

// NewClientWithBaseURL is NewClient with an overridden API root, for tests.
func NewClientWithBaseURL(logger *slog.Logger, httpClient *http.Client, baseURL string) *Client {
	c := NewClient(logger, httpClient)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Request performs an account-scoped API call and returns the raw response
// body. path is relative to /Accounts/{accountSID}/ and, for GET, carries
// any query parameters pre-embedded. For POST the form is sent
// application/x-www-form-urlencoded.
func (c *Client) Request(ctx context.Context, path, accountSID, authToken string, form url.Values, method string) ([]byte, error) {
	start := time.Now()
	defer func() {
		requestDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	endpoint := fmt.Sprintf("%s/Accounts/%s/%s", c.baseURL, accountSID, path)

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create twilio request: %w", err)
	}
	req.SetBasicAuth(accountSID, authToken)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.logger.DebugContext(ctx, "Sending request to Twilio", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to twilio: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read twilio response body (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "Twilio request failed", "status_code", resp.StatusCode, "path", path)
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// CreateMessage posts Messages.json and returns the created message resource.
func (c *Client) CreateMessage(ctx context.Context, accountSID, authToken string, form url.Values) (*MessageResource, error) {
	data, err := c.Request(ctx, "Messages.json", accountSID, authToken, form, http.MethodPost)
	if err != nil {
		return nil, err
	}
	var msg MessageResource
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode twilio message resource: %w", err)
	}
	return &msg, nil
}

// GetMessage fetches the canonical message resource for sid.
func (c *Client) GetMessage(ctx context.Context, accountSID, authToken, sid string) (*MessageResource, error) {
	data, err := c.Request(ctx, fmt.Sprintf("Messages/%s.json", sid), accountSID, authToken, nil, http.MethodGet)
	if err != nil {
		return nil, err
	}
	var msg MessageResource
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode twilio message resource: %w", err)
	}
	return &msg, nil
}

// CreateIncomingPhoneNumber provisions a number on the account.
func (c *Client) CreateIncomingPhoneNumber(ctx context.Context, accountSID, authToken, phoneNumber string) (*IncomingPhoneNumberResource, error) {
	form := url.Values{}
	form.Set("PhoneNumber", phoneNumber)
	data, err := c.Request(ctx, "IncomingPhoneNumbers.json", accountSID, authToken, form, http.MethodPost)
	if err != nil {
		return nil, err
	}
	var pn IncomingPhoneNumberResource
	if err := json.Unmarshal(data, &pn); err != nil {
		return nil, fmt.Errorf("failed to decode twilio phone number resource: %w", err)
	}
	return &pn, nil
}

// GetIncomingPhoneNumber fetches a provisioned number by sid.
func (c *Client) GetIncomingPhoneNumber(ctx context.Context, accountSID, authToken, sid string) (*IncomingPhoneNumberResource, error) {
	data, err := c.Request(ctx, fmt.Sprintf("IncomingPhoneNumbers/%s.json", sid), accountSID, authToken, nil, http.MethodGet)
	if err != nil {
		return nil, err
	}
	var pn IncomingPhoneNumberResource
	if err := json.Unmarshal(data, &pn); err != nil {
		return nil, fmt.Errorf("failed to decode twilio phone number resource: %w", err)
	}
	return &pn, nil
}

// ListIncomingPhoneNumbersByNumber filters the account's numbers by the
// exact phone number.
func (c *Client) ListIncomingPhoneNumbersByNumber(ctx context.Context, accountSID, authToken, phoneNumber string) ([]IncomingPhoneNumberResource, error) {
	path := "IncomingPhoneNumbers.json?PhoneNumber=" + url.QueryEscape(phoneNumber)
	data, err := c.Request(ctx, path, accountSID, authToken, nil, http.MethodGet)
	if err != nil {
		return nil, err
	}
	var list incomingPhoneNumberList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode twilio phone number list: %w", err)
	}
	return list.IncomingPhoneNumbers, nil
}

// UpdateSmsURL points the number's inbound-SMS webhook at smsURL.
func (c *Client) UpdateSmsURL(ctx context.Context, accountSID, authToken, sid, smsURL string) (*IncomingPhoneNumberResource, error) {
	form := url.Values{}
	form.Set("SmsUrl", smsURL)
	data, err := c.Request(ctx, fmt.Sprintf("IncomingPhoneNumbers/%s.json", sid), accountSID, authToken, form, http.MethodPost)
	if err != nil {
		return nil, err
	}
	var pn IncomingPhoneNumberResource
	if err := json.Unmarshal(data, &pn); err != nil {
		return nil, fmt.Errorf("failed to decode twilio phone number resource: %w", err)
	}
	return &pn, nil
}

package http

import "github.com/relaysms/twilio-bridge/internal/bridge/domain"

// SendMessageRequest is the management API request for sending a message.
// AccountSID/AuthToken are per-call credential overrides for multi-tenant
// deployments; single-tenant deployments omit them.
type SendMessageRequest struct {
	To         string `json:"to" validate:"required"`
	Body       string `json:"body" validate:"required"`
	From       string `json:"from,omitempty"`
	AccountSID string `json:"account_sid,omitempty" validate:"required_with=AuthToken"`
	AuthToken  string `json:"auth_token,omitempty" validate:"required_with=AccountSID"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// ProvisionNumberRequest registers a new incoming phone number.
type ProvisionNumberRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	AccountSID  string `json:"account_sid,omitempty" validate:"required_with=AuthToken"`
	AuthToken   string `json:"auth_token,omitempty" validate:"required_with=AccountSID"`
	TenantID    string `json:"tenant_id,omitempty"`
}

// RegisterSmsHandlerRequest points a number's SmsUrl at this service.
type RegisterSmsHandlerRequest struct {
	AccountSID string `json:"account_sid,omitempty" validate:"required_with=AuthToken"`
	AuthToken  string `json:"auth_token,omitempty" validate:"required_with=AccountSID"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// MessageListResponse wraps message query results.
type MessageListResponse struct {
	Messages []*domain.Message `json:"messages"`
}

// ErrorResponse is the JSON error envelope of the management API.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (r *SendMessageRequest) overrideCredentials() *domain.TenantCredentials {
	if r.AccountSID == "" {
		return nil
	}
	return &domain.TenantCredentials{AccountSID: r.AccountSID, AuthToken: r.AuthToken, TenantID: r.TenantID}
}

func (r *ProvisionNumberRequest) overrideCredentials() *domain.TenantCredentials {
	if r.AccountSID == "" {
		return nil
	}
	return &domain.TenantCredentials{AccountSID: r.AccountSID, AuthToken: r.AuthToken, TenantID: r.TenantID}
}

func (r *RegisterSmsHandlerRequest) overrideCredentials() *domain.TenantCredentials {
	if r.AccountSID == "" {
		return nil
	}
	return &domain.TenantCredentials{AccountSID: r.AccountSID, AuthToken: r.AuthToken, TenantID: r.TenantID}
}

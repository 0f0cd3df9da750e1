package domain

// TenantCredentials are the Twilio credentials a destination number
// resolved to. Ephemeral; never persisted by the bridge itself (the
// multi-tenant deployment owns the tenant_numbers table rows).
type TenantCredentials struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"-"`
	TenantID   string `json:"tenant_id,omitempty"`
}

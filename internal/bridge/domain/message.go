package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message direction values as reported by Twilio.
const (
	DirectionInbound     = "inbound"
	DirectionOutboundAPI = "outbound-api"
)

// Message is one SMS/WhatsApp message, inbound or outbound, as persisted
// by the bridge. The field set mirrors the Twilio Message resource; the
// date_* fields are kept verbatim as the RFC 2822 strings Twilio returns
// (or null), since the bridge never computes with them.
type Message struct {
	ID         uuid.UUID `json:"id"`
	AccountSID string    `json:"account_sid"`
	SID        string    `json:"sid"` // unique per account

	Direction string `json:"direction"`
	From      string `json:"from"`
	To        string `json:"to"`
	// Counterparty is the non-owned endpoint: From for inbound messages,
	// To for outbound ones. Derived once at insert and never mutated.
	Counterparty string `json:"counterparty"`
	Body         string `json:"body"`
	Status       string `json:"status"`

	DateCreated string  `json:"date_created"`
	DateSent    *string `json:"date_sent,omitempty"`
	DateUpdated *string `json:"date_updated,omitempty"`

	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`

	Price     *string `json:"price,omitempty"`
	PriceUnit *string `json:"price_unit,omitempty"`

	NumSegments         string  `json:"num_segments"`
	NumMedia            string  `json:"num_media"`
	MessagingServiceSID *string `json:"messaging_service_sid,omitempty"`

	APIVersion      string            `json:"api_version"`
	URI             string            `json:"uri"`
	SubresourceURIs map[string]string `json:"subresource_uris,omitempty"`

	// TenantID is set in multi-tenant deployments to the tenant the
	// account credentials resolved to; empty otherwise.
	TenantID string `json:"tenant_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveCounterparty returns the non-owned endpoint for a message with the
// given direction. Anything that is not inbound is treated as outbound,
// matching Twilio's outbound-api/outbound-call/outbound-reply family.
func DeriveCounterparty(direction, from, to string) string {
	if direction == DirectionInbound {
		return from
	}
	return to
}

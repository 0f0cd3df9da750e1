package domain

import (
	"time"

	"github.com/google/uuid"
)

// PhoneNumber is a Twilio-provisioned incoming phone number owned by an
// account, cached locally the first time it is referenced. Unique per
// (account_sid, sid) and per (account_sid, phone_number).
type PhoneNumber struct {
	ID          uuid.UUID `json:"id"`
	AccountSID  string    `json:"account_sid"`
	SID         string    `json:"sid"`
	PhoneNumber string    `json:"phone_number"`

	FriendlyName string `json:"friendly_name"`
	// SmsURL is the inbound-SMS webhook registered on the number.
	SmsURL    string `json:"sms_url"`
	SmsMethod string `json:"sms_method"`

	CapabilitySMS   bool `json:"capability_sms"`
	CapabilityMMS   bool `json:"capability_mms"`
	CapabilityVoice bool `json:"capability_voice"`
	CapabilityFax   bool `json:"capability_fax"`

	AddressRequirements  string `json:"address_requirements"`
	Status               string `json:"status"`
	APIVersion           string `json:"api_version"`
	Beta                 bool   `json:"beta"`
	Origin               string `json:"origin"`
	URI                  string `json:"uri"`
	StatusCallback       string `json:"status_callback"`
	StatusCallbackMethod string `json:"status_callback_method"`

	DateCreated string `json:"date_created"`
	DateUpdated string `json:"date_updated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

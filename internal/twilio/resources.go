package twilio

// MessageResource is the JSON shape of a Message resource as returned by
// the Twilio 2010-04-01 API (Messages.json / Messages/{Sid}.json).
// Twilio returns num_media/num_segments as strings and the date fields as
// RFC 2822 strings or null; they are stored as received.
type MessageResource struct {
	AccountSID          string            `json:"account_sid"`
	APIVersion          string            `json:"api_version"`
	Body                string            `json:"body"`
	DateCreated         string            `json:"date_created"`
	DateSent            *string           `json:"date_sent"`
	DateUpdated         *string           `json:"date_updated"`
	Direction           string            `json:"direction"`
	ErrorCode           *int              `json:"error_code"`
	ErrorMessage        *string           `json:"error_message"`
	From                string            `json:"from"`
	MessagingServiceSID *string           `json:"messaging_service_sid"`
	NumMedia            string            `json:"num_media"`
	NumSegments         string            `json:"num_segments"`
	Price               *string           `json:"price"`
	PriceUnit           *string           `json:"price_unit"`
	SID                 string            `json:"sid"`
	Status              string            `json:"status"`
	SubresourceURIs     map[string]string `json:"subresource_uris"`
	To                  string            `json:"to"`
	URI                 string            `json:"uri"`
}

// IncomingPhoneNumberResource is the JSON shape of an IncomingPhoneNumber
// resource (IncomingPhoneNumbers.json / IncomingPhoneNumbers/{Sid}.json).
type IncomingPhoneNumberResource struct {
	AccountSID             string             `json:"account_sid"`
	AddressRequirements    string             `json:"address_requirements"`
	AddressSID             *string            `json:"address_sid"`
	APIVersion             string             `json:"api_version"`
	Beta                   bool               `json:"beta"`
	BundleSID              *string            `json:"bundle_sid"`
	Capabilities           NumberCapabilities `json:"capabilities"`
	DateCreated            string             `json:"date_created"`
	DateUpdated            string             `json:"date_updated"`
	EmergencyAddressSID    *string            `json:"emergency_address_sid"`
	EmergencyAddressStatus string             `json:"emergency_address_status"`
	EmergencyStatus        string             `json:"emergency_status"`
	FriendlyName           string             `json:"friendly_name"`
	IdentitySID            *string            `json:"identity_sid"`
	Origin                 string             `json:"origin"`
	PhoneNumber            string             `json:"phone_number"`
	SID                    string             `json:"sid"`
	SmsApplicationSID      string             `json:"sms_application_sid"`
	SmsFallbackMethod      string             `json:"sms_fallback_method"`
	SmsFallbackURL         string             `json:"sms_fallback_url"`
	SmsMethod              string             `json:"sms_method"`
	SmsURL                 string             `json:"sms_url"`
	Status                 string             `json:"status"`
	StatusCallback         string             `json:"status_callback"`
	StatusCallbackMethod   string             `json:"status_callback_method"`
	SubresourceURIs        map[string]string  `json:"subresource_uris"`
	TrunkSID               *string            `json:"trunk_sid"`
	URI                    string             `json:"uri"`
	VoiceApplicationSID    string             `json:"voice_application_sid"`
	VoiceCallerIDLookup    bool               `json:"voice_caller_id_lookup"`
	VoiceFallbackMethod    string             `json:"voice_fallback_method"`
	VoiceFallbackURL       string             `json:"voice_fallback_url"`
	VoiceMethod            string             `json:"voice_method"`
	VoiceURL               string             `json:"voice_url"`
}

// NumberCapabilities are the channel capability flags of a phone number.
type NumberCapabilities struct {
	Fax   bool `json:"fax"`
	MMS   bool `json:"mms"`
	SMS   bool `json:"sms"`
	Voice bool `json:"voice"`
}

// incomingPhoneNumberList is the envelope of the IncomingPhoneNumbers list
// endpoint.
type incomingPhoneNumberList struct {
	IncomingPhoneNumbers []IncomingPhoneNumberResource `json:"incoming_phone_numbers"`
}

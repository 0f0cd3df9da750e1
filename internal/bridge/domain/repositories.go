package domain

import "context"

// MessageRepository is the message store gateway. Every read is scoped by
// accountSID as the leading key so one tenant can never observe another's
// rows. A limit <= 0 means unbounded.
type MessageRepository interface {
	// Create inserts a message. Counterparty must already be derived.
	// Returns ErrDuplicateMessage if (account_sid, sid) exists.
	Create(ctx context.Context, msg *Message) error

	// CreateIfAbsent inserts the message unless a row with the same
	// (account_sid, sid) already exists, in which case it reports
	// inserted=false with no error. Webhook redelivery lands here.
	CreateIfAbsent(ctx context.Context, msg *Message) (inserted bool, err error)

	// UpdateStatus patches only the status of the message identified by
	// (accountSID, sid). Last write wins; out-of-order delivery callbacks
	// may regress the status, which is accepted. Returns
	// ErrMessageNotFound when the sid is unknown.
	UpdateStatus(ctx context.Context, accountSID, sid, status string) error

	List(ctx context.Context, accountSID string, limit int) ([]*Message, error)
	ListByDirection(ctx context.Context, accountSID, direction string, limit int) ([]*Message, error)
	GetBySID(ctx context.Context, accountSID, sid string) (*Message, error)
	ListByTo(ctx context.Context, accountSID, to string, limit int) ([]*Message, error)
	ListByFrom(ctx context.Context, accountSID, from string, limit int) ([]*Message, error)
	ListByCounterparty(ctx context.Context, accountSID, counterparty string, limit int) ([]*Message, error)
}

// PhoneNumberRepository is the local cache of Twilio-provisioned numbers.
type PhoneNumberRepository interface {
	Create(ctx context.Context, pn *PhoneNumber) error
	// GetBySID returns (nil, nil) when absent; absence is expected on the
	// lazy-caching paths and is not an error.
	GetBySID(ctx context.Context, accountSID, sid string) (*PhoneNumber, error)
	GetByPhoneNumber(ctx context.Context, accountSID, phoneNumber string) (*PhoneNumber, error)
	UpdateSmsURL(ctx context.Context, accountSID, sid, smsURL string) error
}

// TenantRepository resolves a destination phone number to the tenant
// owning it. Returns (nil, nil) when no tenant matches.
type TenantRepository interface {
	FindByPhoneNumber(ctx context.Context, phoneNumber string) (*TenantCredentials, error)
}

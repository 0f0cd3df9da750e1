package domain

import "errors"

var (
	// ErrMessageNotFound is returned by status updates and lookups for a
	// sid that does not exist under the given account.
	ErrMessageNotFound = errors.New("message not found")

	// ErrDuplicateMessage indicates an insert collided on (account_sid, sid).
	ErrDuplicateMessage = errors.New("message with this sid already exists")

	// ErrPhoneNumberNotFound is returned when a number is known neither
	// locally nor to Twilio.
	ErrPhoneNumberNotFound = errors.New("phone number not found")

	// ErrUnknownTenant is returned by multi-tenant credential resolution
	// when the destination number belongs to no configured tenant.
	ErrUnknownTenant = errors.New("destination number not associated with any tenant")

	// ErrMissingFromNumber is returned by send when neither an explicit
	// nor a default sender number is available.
	ErrMissingFromNumber = errors.New("missing from number")
)

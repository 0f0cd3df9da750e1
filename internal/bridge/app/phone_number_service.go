package app

import (
	"context"
	"log/slog"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

// TwilioPhoneNumberAPI is the slice of the Twilio client the phone number
// service depends on.
type TwilioPhoneNumberAPI interface {
	CreateIncomingPhoneNumber(ctx context.Context, accountSID, authToken, phoneNumber string) (*twilio.IncomingPhoneNumberResource, error)
	GetIncomingPhoneNumber(ctx context.Context, accountSID, authToken, sid string) (*twilio.IncomingPhoneNumberResource, error)
	ListIncomingPhoneNumbersByNumber(ctx context.Context, accountSID, authToken, phoneNumber string) ([]twilio.IncomingPhoneNumberResource, error)
	UpdateSmsURL(ctx context.Context, accountSID, authToken, sid, smsURL string) (*twilio.IncomingPhoneNumberResource, error)
}

// PhoneNumberService manages the account's Twilio numbers and their local
// cache. Numbers are cached lazily: the first reference by sid or by
// number fetches them from Twilio.
type PhoneNumberService struct {
	repo   domain.PhoneNumberRepository
	client TwilioPhoneNumberAPI
	creds  CredentialProvider
	// incomingSmsURL is the absolute URL of the incoming-message webhook,
	// registered on numbers via RegisterIncomingSmsHandler.
	incomingSmsURL string
	logger         *slog.Logger
}

func NewPhoneNumberService(
	repo domain.PhoneNumberRepository,
	client TwilioPhoneNumberAPI,
	creds CredentialProvider,
	incomingSmsURL string,
	logger *slog.Logger,
) *PhoneNumberService {
	return &PhoneNumberService{
		repo:           repo,
		client:         client,
		creds:          creds,
		incomingSmsURL: incomingSmsURL,
		logger:         logger,
	}
}

// Provision buys/registers a number on the account and caches it locally.
func (s *PhoneNumberService) Provision(ctx context.Context, creds *domain.TenantCredentials, phoneNumber string) (*domain.PhoneNumber, error) {
	var err error
	if creds == nil {
		creds, err = s.creds.Resolve(ctx, phoneNumber)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.client.CreateIncomingPhoneNumber(ctx, creds.AccountSID, creds.AuthToken, phoneNumber)
	if err != nil {
		return nil, err
	}

	pn := phoneNumberFromResource(res)
	if err := s.repo.Create(ctx, pn); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Phone number provisioned", "sid", pn.SID)
	return pn, nil
}

// RegisterIncomingSmsHandler points the number's SmsUrl at this service's
// incoming-message webhook. The number is fetched from Twilio and cached
// if it is not known locally yet.
//
// A number sid carries no phone number to resolve credentials from, so in
// multi-tenant deployments per-call credentials are required; with a nil
// creds the tenant resolver fails with domain.ErrUnknownTenant.
func (s *PhoneNumberService) RegisterIncomingSmsHandler(ctx context.Context, creds *domain.TenantCredentials, sid string) (*domain.PhoneNumber, error) {
	var err error
	if creds == nil {
		creds, err = s.creds.Resolve(ctx, "")
		if err != nil {
			return nil, err
		}
	}

	pn, err := s.repo.GetBySID(ctx, creds.AccountSID, sid)
	if err != nil {
		return nil, err
	}
	if pn == nil {
		s.logger.InfoContext(ctx, "Phone number not cached locally, fetching from Twilio", "sid", sid)
		res, err := s.client.GetIncomingPhoneNumber(ctx, creds.AccountSID, creds.AuthToken, sid)
		if err != nil {
			return nil, err
		}
		pn = phoneNumberFromResource(res)
		if err := s.repo.Create(ctx, pn); err != nil {
			return nil, err
		}
	}

	if _, err := s.client.UpdateSmsURL(ctx, creds.AccountSID, creds.AuthToken, sid, s.incomingSmsURL); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSmsURL(ctx, creds.AccountSID, sid, s.incomingSmsURL); err != nil {
		return nil, err
	}
	pn.SmsURL = s.incomingSmsURL
	s.logger.InfoContext(ctx, "Incoming SMS handler registered", "sid", sid, "sms_url", s.incomingSmsURL)
	return pn, nil
}

// GetByPhoneNumber returns the number's record, consulting the local cache
// first and falling back to Twilio's list filter. An empty Twilio result
// is domain.ErrPhoneNumberNotFound.
func (s *PhoneNumberService) GetByPhoneNumber(ctx context.Context, creds *domain.TenantCredentials, phoneNumber string) (*domain.PhoneNumber, error) {
	var err error
	if creds == nil {
		creds, err = s.creds.Resolve(ctx, phoneNumber)
		if err != nil {
			return nil, err
		}
	}

	pn, err := s.repo.GetByPhoneNumber(ctx, creds.AccountSID, phoneNumber)
	if err != nil {
		return nil, err
	}
	if pn != nil {
		return pn, nil
	}

	s.logger.InfoContext(ctx, "Phone number not cached locally, querying Twilio",
		"number", RedactNumber(phoneNumber))
	numbers, err := s.client.ListIncomingPhoneNumbersByNumber(ctx, creds.AccountSID, creds.AuthToken, phoneNumber)
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, domain.ErrPhoneNumberNotFound
	}

	pn = phoneNumberFromResource(&numbers[0])
	if err := s.repo.Create(ctx, pn); err != nil {
		return nil, err
	}
	return pn, nil
}

func phoneNumberFromResource(res *twilio.IncomingPhoneNumberResource) *domain.PhoneNumber {
	return &domain.PhoneNumber{
		AccountSID:           res.AccountSID,
		SID:                  res.SID,
		PhoneNumber:          res.PhoneNumber,
		FriendlyName:         res.FriendlyName,
		SmsURL:               res.SmsURL,
		SmsMethod:            res.SmsMethod,
		CapabilitySMS:        res.Capabilities.SMS,
		CapabilityMMS:        res.Capabilities.MMS,
		CapabilityVoice:      res.Capabilities.Voice,
		CapabilityFax:        res.Capabilities.Fax,
		AddressRequirements:  res.AddressRequirements,
		Status:               res.Status,
		APIVersion:           res.APIVersion,
		Beta:                 res.Beta,
		Origin:               res.Origin,
		URI:                  res.URI,
		StatusCallback:       res.StatusCallback,
		StatusCallbackMethod: res.StatusCallbackMethod,
		DateCreated:          res.DateCreated,
		DateUpdated:          res.DateUpdated,
	}
}

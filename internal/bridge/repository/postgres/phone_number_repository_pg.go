package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
)

const phoneNumberColumns = `
	id, account_sid, sid, phone_number, friendly_name, sms_url, sms_method,
	capability_sms, capability_mms, capability_voice, capability_fax,
	address_requirements, status, api_version, beta, origin, uri,
	status_callback, status_callback_method, date_created, date_updated,
	created_at, updated_at`

type PgPhoneNumberRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgPhoneNumberRepository creates the PostgreSQL implementation of
// domain.PhoneNumberRepository.
func NewPgPhoneNumberRepository(db *pgxpool.Pool, logger *slog.Logger) *PgPhoneNumberRepository {
	return &PgPhoneNumberRepository{db: db, logger: logger}
}

func (r *PgPhoneNumberRepository) Create(ctx context.Context, pn *domain.PhoneNumber) error {
	if pn.ID == uuid.Nil {
		pn.ID = uuid.New()
	}
	now := time.Now().UTC()
	pn.CreatedAt = now
	pn.UpdatedAt = now

	query := `
		INSERT INTO phone_numbers (` + phoneNumberColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23
		)`
	_, err := r.db.Exec(ctx, query,
		pn.ID, pn.AccountSID, pn.SID, pn.PhoneNumber, pn.FriendlyName, pn.SmsURL, pn.SmsMethod,
		pn.CapabilitySMS, pn.CapabilityMMS, pn.CapabilityVoice, pn.CapabilityFax,
		pn.AddressRequirements, pn.Status, pn.APIVersion, pn.Beta, pn.Origin, pn.URI,
		pn.StatusCallback, pn.StatusCallbackMethod, pn.DateCreated, pn.DateUpdated,
		pn.CreatedAt, pn.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// lazy caching races are benign: the first writer wins
			r.logger.DebugContext(ctx, "Phone number already cached",
				"account_sid", pn.AccountSID, "sid", pn.SID)
			return nil
		}
		r.logger.ErrorContext(ctx, "Error inserting phone number",
			"error", err, "account_sid", pn.AccountSID, "sid", pn.SID)
		return err
	}
	return nil
}

func (r *PgPhoneNumberRepository) GetBySID(ctx context.Context, accountSID, sid string) (*domain.PhoneNumber, error) {
	query := `SELECT ` + phoneNumberColumns + ` FROM phone_numbers WHERE account_sid = $1 AND sid = $2 LIMIT 1`
	return r.queryOne(ctx, query, accountSID, sid)
}

func (r *PgPhoneNumberRepository) GetByPhoneNumber(ctx context.Context, accountSID, phoneNumber string) (*domain.PhoneNumber, error) {
	query := `SELECT ` + phoneNumberColumns + ` FROM phone_numbers WHERE account_sid = $1 AND phone_number = $2 LIMIT 1`
	return r.queryOne(ctx, query, accountSID, phoneNumber)
}

func (r *PgPhoneNumberRepository) UpdateSmsURL(ctx context.Context, accountSID, sid, smsURL string) error {
	query := `
		UPDATE phone_numbers
		SET sms_url = $3, updated_at = $4
		WHERE account_sid = $1 AND sid = $2
	`
	tag, err := r.db.Exec(ctx, query, accountSID, sid, smsURL, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating phone number sms_url",
			"error", err, "account_sid", accountSID, "sid", sid)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPhoneNumberNotFound
	}
	return nil
}

func (r *PgPhoneNumberRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.PhoneNumber, error) {
	var pn domain.PhoneNumber
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&pn.ID, &pn.AccountSID, &pn.SID, &pn.PhoneNumber, &pn.FriendlyName, &pn.SmsURL, &pn.SmsMethod,
		&pn.CapabilitySMS, &pn.CapabilityMMS, &pn.CapabilityVoice, &pn.CapabilityFax,
		&pn.AddressRequirements, &pn.Status, &pn.APIVersion, &pn.Beta, &pn.Origin, &pn.URI,
		&pn.StatusCallback, &pn.StatusCallbackMethod, &pn.DateCreated, &pn.DateUpdated,
		&pn.CreatedAt, &pn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error querying phone number", "error", err)
		return nil, err
	}
	return &pn, nil
}

package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
)

type PgTenantRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgTenantRepository creates the PostgreSQL implementation of
// domain.TenantRepository, backed by the tenant_numbers table that maps
// each provisioned destination number to its tenant's Twilio credentials.
func NewPgTenantRepository(db *pgxpool.Pool, logger *slog.Logger) *PgTenantRepository {
	return &PgTenantRepository{db: db, logger: logger}
}

// FindByPhoneNumber returns (nil, nil) when the number belongs to no
// tenant; the caller decides whether that is an error.
func (r *PgTenantRepository) FindByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error) {
	query := `
		SELECT account_sid, auth_token, tenant_id
		FROM tenant_numbers
		WHERE phone_number = $1
		LIMIT 1
	`
	var creds domain.TenantCredentials
	err := r.db.QueryRow(ctx, query, phoneNumber).Scan(
		&creds.AccountSID, &creds.AuthToken, &creds.TenantID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error querying tenant by phone number", "error", err)
		return nil, err
	}
	return &creds, nil
}

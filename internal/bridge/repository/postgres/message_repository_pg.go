package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
)

const pgUniqueViolation = "23505"

const messageColumns = `
	id, account_sid, sid, direction, from_number, to_number, counterparty,
	body, status, date_created, date_sent, date_updated, error_code,
	error_message, price, price_unit, num_segments, num_media,
	messaging_service_sid, api_version, uri, subresource_uris, tenant_id,
	created_at, updated_at`

type PgMessageRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgMessageRepository creates the PostgreSQL implementation of
// domain.MessageRepository.
func NewPgMessageRepository(db *pgxpool.Pool, logger *slog.Logger) *PgMessageRepository {
	return &PgMessageRepository{db: db, logger: logger}
}

func (r *PgMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	_, err := r.insert(ctx, msg, false)
	return err
}

func (r *PgMessageRepository) CreateIfAbsent(ctx context.Context, msg *domain.Message) (bool, error) {
	affected, err := r.insert(ctx, msg, true)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PgMessageRepository) insert(ctx context.Context, msg *domain.Message, ignoreConflict bool) (int64, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	subresources, err := marshalSubresources(msg.SubresourceURIs)
	if err != nil {
		return 0, err
	}

	conflictClause := ""
	if ignoreConflict {
		conflictClause = " ON CONFLICT (account_sid, sid) DO NOTHING"
	}

	query := `
		INSERT INTO messages (` + messageColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)` + conflictClause

	tag, err := r.db.Exec(ctx, query,
		msg.ID, msg.AccountSID, msg.SID, msg.Direction, msg.From, msg.To, msg.Counterparty,
		msg.Body, msg.Status, msg.DateCreated, msg.DateSent, msg.DateUpdated, msg.ErrorCode,
		msg.ErrorMessage, msg.Price, msg.PriceUnit, msg.NumSegments, msg.NumMedia,
		msg.MessagingServiceSID, msg.APIVersion, msg.URI, subresources, msg.TenantID,
		msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, domain.ErrDuplicateMessage
		}
		r.logger.ErrorContext(ctx, "Error inserting message",
			"error", err, "account_sid", msg.AccountSID, "sid", msg.SID)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgMessageRepository) UpdateStatus(ctx context.Context, accountSID, sid, status string) error {
	query := `
		UPDATE messages
		SET status = $3, updated_at = $4
		WHERE account_sid = $1 AND sid = $2
	`
	tag, err := r.db.Exec(ctx, query, accountSID, sid, status, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating message status",
			"error", err, "account_sid", accountSID, "sid", sid)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *PgMessageRepository) List(ctx context.Context, accountSID string, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_sid = $1 ORDER BY created_at DESC` + limitClause(limit)
	return r.queryMessages(ctx, query, accountSID)
}

func (r *PgMessageRepository) ListByDirection(ctx context.Context, accountSID, direction string, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_sid = $1 AND direction = $2 ORDER BY created_at DESC` + limitClause(limit)
	return r.queryMessages(ctx, query, accountSID, direction)
}

func (r *PgMessageRepository) GetBySID(ctx context.Context, accountSID, sid string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_sid = $1 AND sid = $2 LIMIT 1`
	msgs, err := r.queryMessages(ctx, query, accountSID, sid)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrMessageNotFound
	}
	return msgs[0], nil
}

func (r *PgMessageRepository) ListByTo(ctx context.Context, accountSID, to string, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_sid = $1 AND to_number = $2 ORDER BY created_at DESC` + limitClause(limit)
	return r.queryMessages(ctx, query, accountSID, to)
}

func (r *PgMessageRepository) ListByFrom(ctx context.Context, accountSID, from string, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_sid = $1 AND from_number = $2 ORDER BY created_at DESC` + limitClause(limit)
	return r.queryMessages(ctx, query, accountSID, from)
}

func (r *PgMessageRepository) ListByCounterparty(ctx context.Context, accountSID, counterparty string, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_sid = $1 AND counterparty = $2 ORDER BY created_at DESC` + limitClause(limit)
	return r.queryMessages(ctx, query, accountSID, counterparty)
}

func (r *PgMessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var subresources []byte
	err := row.Scan(
		&msg.ID, &msg.AccountSID, &msg.SID, &msg.Direction, &msg.From, &msg.To, &msg.Counterparty,
		&msg.Body, &msg.Status, &msg.DateCreated, &msg.DateSent, &msg.DateUpdated, &msg.ErrorCode,
		&msg.ErrorMessage, &msg.Price, &msg.PriceUnit, &msg.NumSegments, &msg.NumMedia,
		&msg.MessagingServiceSID, &msg.APIVersion, &msg.URI, &subresources, &msg.TenantID,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(subresources) > 0 {
		if err := json.Unmarshal(subresources, &msg.SubresourceURIs); err != nil {
			return nil, fmt.Errorf("failed to decode subresource_uris for message %s: %w", msg.SID, err)
		}
	}
	return &msg, nil
}

func marshalSubresources(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode subresource_uris: %w", err)
	}
	return data, nil
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boostnet/internal/graph"
	"boostnet/pkg/platform/sentinel"
)

// Schema creates the inbox table. Applied at startup; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS inbox_credentials (
	id                 TEXT PRIMARY KEY,
	issuer_profile_id  TEXT NOT NULL,
	contact_type       TEXT NOT NULL,
	contact_value      TEXT NOT NULL,
	credential         JSONB NOT NULL,
	signed             BOOLEAN NOT NULL,
	authority_endpoint TEXT NOT NULL DEFAULT '',
	authority_name     TEXT NOT NULL DEFAULT '',
	encrypt            BOOLEAN NOT NULL DEFAULT FALSE,
	webhook_url        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	expires_at         TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	claimed_at         TIMESTAMPTZ,
	claimed_by         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_inbox_recipient
	ON inbox_credentials (contact_type, contact_value) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_inbox_issuer
	ON inbox_credentials (issuer_profile_id, created_at DESC);
`

// PostgresStore persists inbox credentials in Postgres. Status transitions
// use conditional UPDATEs so concurrent claimers of one record cannot both
// win.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("apply inbox schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

const inboxColumns = `id, issuer_profile_id, contact_type, contact_value, credential, signed,
	authority_endpoint, authority_name, encrypt, webhook_url, status, expires_at, created_at, claimed_at, claimed_by`

func (s *PostgresStore) Create(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbox_credentials
			(id, issuer_profile_id, contact_type, contact_value, credential, signed,
			 authority_endpoint, authority_name, encrypt, webhook_url, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.IssuerProfileID, string(c.Recipient.Type), c.Recipient.Value,
		[]byte(c.Credential), c.Signed, c.AuthorityEndpoint, c.AuthorityName,
		c.Encrypt, c.WebhookURL, string(c.Status), c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inbox credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inboxColumns+` FROM inbox_credentials WHERE id = $1`, id)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("inbox credential %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("select inbox credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) MarkClaimed(ctx context.Context, id, claimedBy string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE inbox_credentials
		SET status = $1, claimed_at = now(), claimed_by = $2
		WHERE id = $3 AND status = $4
		RETURNING `+inboxColumns,
		string(StatusClaimed), claimedBy, id, string(StatusPending))
	c, err := scanCredential(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim inbox credential: %w", err)
	}

	// No row updated: distinguish missing from already transitioned.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("inbox credential %s is not pending: %w", id, sentinel.ErrInvalidState)
}

func (s *PostgresStore) MarkExpired(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inbox_credentials SET status = $1 WHERE id = $2 AND status = $3`,
		string(StatusExpired), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("expire inbox credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *PostgresStore) ListPendingForRecipient(ctx context.Context, typ graph.ContactMethodType, value string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inboxColumns+` FROM inbox_credentials
		WHERE status = $1 AND contact_type = $2 AND contact_value = $3
		ORDER BY created_at ASC`,
		string(StatusPending), string(typ), value)
	if err != nil {
		return nil, fmt.Errorf("list pending inbox credentials: %w", err)
	}
	return collectCredentials(rows)
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuerProfileID string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inboxColumns+` FROM inbox_credentials
		WHERE issuer_profile_id = $1
		ORDER BY created_at DESC`, issuerProfileID)
	if err != nil {
		return nil, fmt.Errorf("list issuer inbox credentials: %w", err)
	}
	return collectCredentials(rows)
}

func (s *PostgresStore) ListExpiredPending(ctx context.Context, now time.Time) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inboxColumns+` FROM inbox_credentials
		WHERE status = $1 AND expires_at < $2`,
		string(StatusPending), now)
	if err != nil {
		return nil, fmt.Errorf("list expired inbox credentials: %w", err)
	}
	return collectCredentials(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var c Credential
	var contactType, status string
	var credentialRaw []byte
	var claimedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.IssuerProfileID, &contactType, &c.Recipient.Value,
		&credentialRaw, &c.Signed, &c.AuthorityEndpoint, &c.AuthorityName,
		&c.Encrypt, &c.WebhookURL, &status, &c.ExpiresAt, &c.CreatedAt, &claimedAt, &c.ClaimedBy,
	)
	if err != nil {
		return nil, err
	}
	c.Recipient.Type = graph.ContactMethodType(contactType)
	c.Credential = credentialRaw
	c.Status = Status(status)
	if claimedAt.Valid {
		c.ClaimedAt = &claimedAt.Time
	}
	return &c, nil
}

func collectCredentials(rows *sql.Rows) ([]Credential, error) {
	defer rows.Close()
	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inbox credential: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbox credentials: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeederToken is a minted feeder credential: the opaque bearer token is
// never stored, only its hash, so a stolen dump of this table cannot be
// replayed as a credential.
type FeederToken struct {
	TokenHash      string
	Label          string
	SourcePriority int
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

// ErrFeederTokenNotFound is returned when no live token matches a hash.
var ErrFeederTokenNotFound = errors.New("feeder token not found or revoked")

// CreateFeederToken records a newly minted token by its hash.
func (s *Store) CreateFeederToken(ctx context.Context, t FeederToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeder_tokens (token_hash, label, source_priority)
		VALUES ($1, $2, $3)`,
		t.TokenHash, t.Label, t.SourcePriority,
	)
	if err != nil {
		return fmt.Errorf("create feeder token: %w", err)
	}
	return nil
}

// LookupFeederToken returns the live (non-revoked) token matching hash.
func (s *Store) LookupFeederToken(ctx context.Context, hash string) (*FeederToken, error) {
	var t FeederToken
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, label, source_priority, created_at, revoked_at
		FROM feeder_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL`,
		hash,
	).Scan(&t.TokenHash, &t.Label, &t.SourcePriority, &t.CreatedAt, &t.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFeederTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup feeder token: %w", err)
	}
	return &t, nil
}

// RevokeFeederToken marks a token unusable without deleting its audit row.
func (s *Store) RevokeFeederToken(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeder_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`,
		hash,
	)
	if err != nil {
		return fmt.Errorf("revoke feeder token: %w", err)
	}
	return nil
}

// Package postgres implements [store.Store] on PostgreSQL with pgx.
//
// Tokens live in jwt_tokens with the payload in a jsonb column; revocations live in
// jwt_token_blacklist whose unique jwt_token_id makes inserts idempotent through
// ON CONFLICT DO NOTHING. Group and type lookups read the grp and typ claims straight
// from the payload.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/goToken/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store is a PostgreSQL backed token store.
type Store struct {
	db  DB
	now func() time.Time
}

// New returns a store on db. A nil clock defaults to time.Now.
func New(db DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

const selectColumns = `id::text, token, tokenable_id, tokenable_type,
	coalesce(token->'claims'->>'typ', ''), coalesce(token->'claims'->>'grp', ''), created_at`

const insertSQL = `INSERT INTO jwt_tokens (id, token, tokenable_id, tokenable_type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`

const revokeSQL = `INSERT INTO jwt_token_blacklist (jwt_token_id, created_at, updated_at)
SELECT id, $2, $2 FROM unnest($1::text[]::uuid[]) AS id
ON CONFLICT (jwt_token_id) DO NOTHING`

func (s *Store) Insert(ctx context.Context, records ...store.Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return s.insert(ctx, tx, records)
	})
}

func (s *Store) insert(ctx context.Context, tx pgx.Tx, records []store.Record) error {
	now := s.now()
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err := tx.Exec(ctx, insertSQL, r.ID, r.Payload, r.OwnerID, string(r.OwnerKind), created)
		if err != nil {
			if pgCode(err) == pgUniqueViolation {
				return fmt.Errorf("%w: %s", store.ErrDuplicateRecord, r.ID)
			}
			return fmt.Errorf("%w: insert token %s: %w", store.ErrUnavailable, r.ID, err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.Record{}, store.ErrRecordNotFound
	}

	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM jwt_tokens WHERE id = $1::uuid`, id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Record{}, store.ErrRecordNotFound
		}
		return store.Record{}, fmt.Errorf("%w: get token %s: %w", store.ErrUnavailable, id, err)
	}
	return r, nil
}

func (s *Store) ListGroup(ctx context.Context, group string) ([]store.Record, error) {
	if group == "" {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM jwt_tokens
WHERE token->'claims'->>'grp' = $1 ORDER BY id`, group)
	if err != nil {
		return nil, fmt.Errorf("%w: list group %s: %w", store.ErrUnavailable, group, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan token: %w", store.ErrUnavailable, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list group %s: %w", store.ErrUnavailable, group, err)
	}
	return out, nil
}

func (s *Store) IsRevoked(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	var revoked bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jwt_token_blacklist WHERE jwt_token_id = $1::uuid)`, id).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%w: check revocation %s: %w", store.ErrUnavailable, id, err)
	}
	return revoked, nil
}

func (s *Store) Revoke(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return s.revoke(ctx, tx, ids)
	})
}

func (s *Store) revoke(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
		}
	}

	if _, err := tx.Exec(ctx, revokeSQL, ids, s.now()); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("%w: %v", store.ErrRecordNotFound, err)
		}
		return fmt.Errorf("%w: revoke tokens: %w", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Rotate(ctx context.Context, revoke []string, issue []store.Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.revoke(ctx, tx, revoke); err != nil {
			return err
		}
		return s.insert(ctx, tx, issue)
	})
}

func (s *Store) DeleteCreatedBefore(ctx context.Context, tokenType string, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM jwt_tokens WHERE token->'claims'->>'typ' = $1 AND created_at <= $2`, tokenType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired %s tokens: %w", store.ErrUnavailable, tokenType, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", store.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %w", store.ErrUnavailable, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (store.Record, error) {
	var (
		r    store.Record
		kind string
	)
	if err := row.Scan(&r.ID, &r.Payload, &r.OwnerID, &kind, &r.Type, &r.Group, &r.CreatedAt); err != nil {
		return store.Record{}, err
	}
	r.OwnerKind = store.OwnerKind(kind)
	return r, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ store.Store = (*Store)(nil)

package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jwt_tokens (
	id             uuid        PRIMARY KEY,
	token          jsonb       NOT NULL,
	tokenable_id   text        NOT NULL,
	tokenable_type text        NOT NULL,
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS jwt_tokens_tokenable_idx ON jwt_tokens (tokenable_type, tokenable_id);
CREATE INDEX IF NOT EXISTS jwt_tokens_group_idx ON jwt_tokens ((token->'claims'->>'grp'));
CREATE INDEX IF NOT EXISTS jwt_tokens_type_created_idx ON jwt_tokens ((token->'claims'->>'typ'), created_at);

CREATE TABLE IF NOT EXISTS jwt_token_blacklist (
	id           bigserial   PRIMARY KEY,
	jwt_token_id uuid        NOT NULL UNIQUE REFERENCES jwt_tokens (id) ON DELETE CASCADE,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);
`

// Migrate creates the token and blacklist tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate token schema: %w", err)
	}
	return nil
}

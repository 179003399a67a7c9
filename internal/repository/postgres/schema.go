// internal/repository/postgres/schema.go
package postgres

import (
	"context"
	"fmt"

	"credit-ledger/internal/repository"
)

// schema is idempotent so it can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         BIGSERIAL PRIMARY KEY,
	owner      TEXT        NOT NULL,
	balance    BIGINT      NOT NULL CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT accounts_owner_key UNIQUE (owner)
);

CREATE TABLE IF NOT EXISTS ledger_events (
	id            BIGSERIAL PRIMARY KEY,
	account_id    BIGINT      NOT NULL REFERENCES accounts (id),
	delta         BIGINT      NOT NULL CHECK (delta <> 0),
	kind          TEXT        NOT NULL CHECK (kind IN ('debit', 'credit')),
	reference     TEXT,
	balance_after BIGINT      NOT NULL CHECK (balance_after >= 0),
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_events_account_created_idx
	ON ledger_events (account_id, created_at DESC);

CREATE UNIQUE INDEX IF NOT EXISTS ledger_events_credit_reference_key
	ON ledger_events (reference) WHERE kind = 'credit';

CREATE TABLE IF NOT EXISTS messages (
	id             BIGSERIAL PRIMARY KEY,
	sender_id      BIGINT      NOT NULL REFERENCES accounts (id),
	recipient_id   BIGINT      NOT NULL REFERENCES accounts (id),
	content        TEXT        NOT NULL,
	status         TEXT        NOT NULL,
	debit_event_id BIGINT      NOT NULL REFERENCES ledger_events (id),
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id, created_at DESC);
CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient_id, created_at DESC);
`

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, q repository.DBExecutor) error {
	if _, err := q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

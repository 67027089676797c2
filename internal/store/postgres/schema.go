// Package postgres provides the PostgreSQL-backed [store.Store]. All tables
// share a single [pgxpool.Pool]; [Migrate] creates them idempotently via
// CREATE TABLE IF NOT EXISTS so the service can run against an empty database.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL,
    dm_context  TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT         PRIMARY KEY,
    campaign_id  TEXT         NOT NULL,
    name         TEXT         NOT NULL DEFAULT '',
    start_time   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    end_time     TIMESTAMPTZ,
    is_active    BOOLEAN      NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_sessions_campaign_id
    ON sessions (campaign_id, start_time);
`

const ddlCards = `
CREATE TABLE IF NOT EXISTS cards (
    id                 TEXT         PRIMARY KEY,
    campaign_id        TEXT         NOT NULL,
    type               TEXT         NOT NULL,
    name               TEXT         NOT NULL,
    notes              TEXT         NOT NULL DEFAULT '',
    genesis            TEXT         NOT NULL DEFAULT '',
    is_canon           BOOLEAN      NOT NULL DEFAULT false,
    canon_facts        JSONB        NOT NULL DEFAULT '[]',
    riffs              JSONB        NOT NULL DEFAULT '{}',
    is_pc              BOOLEAN      NOT NULL DEFAULT false,
    in_party           BOOLEAN      NOT NULL DEFAULT false,
    is_hostile         BOOLEAN      NOT NULL DEFAULT false,
    in_combat          BOOLEAN      NOT NULL DEFAULT false,
    hp_current         INTEGER,
    hp_max             INTEGER,
    ac                 INTEGER      NOT NULL DEFAULT 0,
    level              INTEGER      NOT NULL DEFAULT 0,
    class              TEXT         NOT NULL DEFAULT '',
    stats              JSONB        NOT NULL DEFAULT '{}',
    status             JSONB        NOT NULL DEFAULT '[]',
    session_id         TEXT         NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    voided_at          TIMESTAMPTZ,
    voided_in_session  TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cards_campaign_id ON cards (campaign_id);
CREATE INDEX IF NOT EXISTS idx_cards_name ON cards (lower(name));
`

const ddlTranscript = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    speaker     TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_session_timestamp
    ON transcript_entries (session_id, timestamp);
`

const ddlEvents = `
CREATE TABLE IF NOT EXISTS events (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    character_name TEXT         NOT NULL DEFAULT '',
    type        TEXT         NOT NULL,
    detail      TEXT         NOT NULL DEFAULT '',
    outcome     TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_events_session_id ON events (session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_character ON events (lower(character_name));
`

const ddlRoster = `
CREATE TABLE IF NOT EXISTS roster_entries (
    id              TEXT    PRIMARY KEY,
    campaign_id     TEXT    NOT NULL,
    player_name     TEXT    NOT NULL,
    character_name  TEXT    NOT NULL,
    character_id    TEXT    NOT NULL DEFAULT '',
    aliases         JSONB   NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_roster_campaign_id ON roster_entries (campaign_id);
`

const ddlAILogs = `
CREATE TABLE IF NOT EXISTS ai_logs (
    id             BIGSERIAL    PRIMARY KEY,
    function_type  TEXT         NOT NULL,
    model          TEXT         NOT NULL DEFAULT '',
    system_prompt  TEXT         NOT NULL DEFAULT '',
    user_prompt    TEXT         NOT NULL DEFAULT '',
    response_text  TEXT         NOT NULL DEFAULT '',
    parsed_result  JSONB,
    tokens_in      INTEGER      NOT NULL DEFAULT 0,
    tokens_out     INTEGER      NOT NULL DEFAULT 0,
    duration_ms    BIGINT       NOT NULL DEFAULT 0,
    error          TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ai_logs_function_type ON ai_logs (function_type, created_at);
`

// Migrate creates all tables and indexes required by the store and the AI
// call audit log.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for name, ddl := range map[string]string{
		"campaigns":          ddlCampaigns,
		"sessions":           ddlSessions,
		"cards":              ddlCards,
		"transcript_entries": ddlTranscript,
		"events":             ddlEvents,
		"roster_entries":     ddlRoster,
		"ai_logs":            ddlAILogs,
	} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres store: migrate %s: %w", name, err)
		}
	}
	return nil
}

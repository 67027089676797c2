package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [store.Store]. It holds a single
// [pgxpool.Pool]; JSONB columns carry the structured card fields (stats,
// status, riffs, canon facts). All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying connection pool so the AI audit log can share
// it rather than opening a second one.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) UpdateCampaign(ctx context.Context, c campaign.Campaign) error {
	const q = `
		INSERT INTO campaigns (id, name, dm_context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, dm_context = EXCLUDED.dm_context, updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, q, c.ID, c.Name, c.DMContext, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: update campaign: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cards
// ─────────────────────────────────────────────────────────────────────────────

const cardColumns = `id, campaign_id, type, name, notes, genesis,
	is_canon, canon_facts, riffs, is_pc, in_party, is_hostile, in_combat,
	hp_current, hp_max, ac, level, class, stats, status,
	session_id, created_at, voided_at, voided_in_session`

func (s *Store) CreateCards(ctx context.Context, cards []campaign.Card) error {
	const q = `
		INSERT INTO cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(q, cardArgs(c)...)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: create cards: %w", err)
	}
	return nil
}

func (s *Store) UpdateCard(ctx context.Context, c campaign.Card) error {
	const q = `
		UPDATE cards SET
			type = $2, name = $3, notes = $4, genesis = $5,
			is_canon = $6, canon_facts = $7, riffs = $8,
			is_pc = $9, in_party = $10, is_hostile = $11, in_combat = $12,
			hp_current = $13, hp_max = $14, ac = $15, level = $16, class = $17,
			stats = $18, status = $19
		WHERE id = $1`

	var hpCur, hpMax *int
	if c.HP != nil {
		hpCur, hpMax = &c.HP.Current, &c.HP.Max
	}
	tag, err := s.pool.Exec(ctx, q,
		c.ID, c.Type, c.Name, c.Notes, c.Genesis,
		c.IsCanon, c.CanonFacts, c.Riffs,
		c.IsPC, c.InParty, c.IsHostile, c.InCombat,
		hpCur, hpMax, c.AC, c.Level, c.Class,
		c.Stats, c.Status,
	)
	if err != nil {
		return fmt.Errorf("postgres store: update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: card %q", store.ErrNotFound, c.ID)
	}
	return nil
}

func (s *Store) VoidCard(ctx context.Context, c campaign.Card) error {
	const q = `UPDATE cards SET voided_at = $2, voided_in_session = $3 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, c.ID, c.VoidedAt, c.VoidedInSession)
	if err != nil {
		return fmt.Errorf("postgres store: void card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: card %q", store.ErrNotFound, c.ID)
	}
	return nil
}

func (s *Store) RestoreCard(ctx context.Context, id string) error {
	const q = `UPDATE cards SET voided_at = NULL, voided_in_session = '' WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("postgres store: restore card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: card %q", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) PurgeCard(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store: purge card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: card %q", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) FetchCards(ctx context.Context, campaignID string) ([]campaign.Card, error) {
	q := `SELECT ` + cardColumns + ` FROM cards WHERE campaign_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: fetch cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (campaign.Card, error) {
		var (
			c            campaign.Card
			hpCur, hpMax *int
		)
		err := row.Scan(
			&c.ID, &c.CampaignID, &c.Type, &c.Name, &c.Notes, &c.Genesis,
			&c.IsCanon, &c.CanonFacts, &c.Riffs,
			&c.IsPC, &c.InParty, &c.IsHostile, &c.InCombat,
			&hpCur, &hpMax, &c.AC, &c.Level, &c.Class, &c.Stats, &c.Status,
			&c.SessionID, &c.CreatedAt, &c.VoidedAt, &c.VoidedInSession,
		)
		if err != nil {
			return campaign.Card{}, err
		}
		if hpCur != nil && hpMax != nil {
			c.HP = &campaign.HP{Current: *hpCur, Max: *hpMax}
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan cards: %w", err)
	}
	return cards, nil
}

func cardArgs(c campaign.Card) []any {
	var hpCur, hpMax *int
	if c.HP != nil {
		hpCur, hpMax = &c.HP.Current, &c.HP.Max
	}
	return []any{
		c.ID, c.CampaignID, c.Type, c.Name, c.Notes, c.Genesis,
		c.IsCanon, c.CanonFacts, c.Riffs,
		c.IsPC, c.InParty, c.IsHostile, c.InCombat,
		hpCur, hpMax, c.AC, c.Level, c.Class, c.Stats, c.Status,
		c.SessionID, c.CreatedAt, c.VoidedAt, c.VoidedInSession,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess campaign.Session) error {
	const q = `
		INSERT INTO sessions (id, campaign_id, name, start_time, end_time, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q, sess.ID, sess.CampaignID, sess.Name, sess.StartTime, sess.EndTime, sess.IsActive)
	if err != nil {
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess campaign.Session) error {
	const q = `UPDATE sessions SET name = $2, end_time = $3, is_active = $4 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, sess.ID, sess.Name, sess.EndTime, sess.IsActive)
	if err != nil {
		return fmt.Errorf("postgres store: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %q", store.ErrNotFound, sess.ID)
	}
	return nil
}

func (s *Store) FetchSessions(ctx context.Context, campaignID string) ([]campaign.Session, error) {
	const q = `
		SELECT id, campaign_id, name, start_time, end_time, is_active
		FROM   sessions
		WHERE  campaign_id = $1
		ORDER  BY start_time`

	rows, err := s.pool.Query(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: fetch sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (campaign.Session, error) {
		var sess campaign.Session
		err := row.Scan(&sess.ID, &sess.CampaignID, &sess.Name, &sess.StartTime, &sess.EndTime, &sess.IsActive)
		return sess, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan sessions: %w", err)
	}
	return sessions, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcript and events
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) AppendTranscript(ctx context.Context, e campaign.TranscriptEntry) error {
	const q = `
		INSERT INTO transcript_entries (id, session_id, speaker, text, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, e.ID, e.SessionID, e.Speaker, e.Text, e.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres store: append transcript: %w", err)
	}
	return nil
}

func (s *Store) FetchTranscript(ctx context.Context, sessionID string) ([]campaign.TranscriptEntry, error) {
	const q = `
		SELECT id, session_id, speaker, text, timestamp
		FROM   transcript_entries
		WHERE  session_id = $1
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: fetch transcript: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (campaign.TranscriptEntry, error) {
		var e campaign.TranscriptEntry
		err := row.Scan(&e.ID, &e.SessionID, &e.Speaker, &e.Text, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan transcript: %w", err)
	}
	return entries, nil
}

func (s *Store) AppendEvents(ctx context.Context, events []campaign.Event) error {
	const q = `
		INSERT INTO events (id, session_id, character_name, type, detail, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(q, e.ID, e.SessionID, e.Character, e.Type, e.Detail, e.Outcome, e.CreatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: append events: %w", err)
	}
	return nil
}

func (s *Store) FetchEvents(ctx context.Context, sessionID string) ([]campaign.Event, error) {
	const q = `
		SELECT id, session_id, character_name, type, detail, outcome, created_at
		FROM   events
		WHERE  session_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: fetch events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (campaign.Event, error) {
		var e campaign.Event
		err := row.Scan(&e.ID, &e.SessionID, &e.Character, &e.Type, &e.Detail, &e.Outcome, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan events: %w", err)
	}
	return events, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Roster
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) UpsertRosterEntry(ctx context.Context, e campaign.RosterEntry) error {
	const q = `
		INSERT INTO roster_entries (id, campaign_id, player_name, character_name, character_id, aliases)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			character_name = EXCLUDED.character_name,
			character_id = EXCLUDED.character_id,
			aliases = EXCLUDED.aliases`

	_, err := s.pool.Exec(ctx, q, e.ID, e.CampaignID, e.PlayerName, e.CharacterName, e.CharacterID, e.Aliases)
	if err != nil {
		return fmt.Errorf("postgres store: upsert roster entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteRosterEntry(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM roster_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres store: delete roster entry: %w", err)
	}
	return nil
}

func (s *Store) FetchRoster(ctx context.Context, campaignID string) ([]campaign.RosterEntry, error) {
	const q = `
		SELECT id, campaign_id, player_name, character_name, character_id, aliases
		FROM   roster_entries
		WHERE  campaign_id = $1
		ORDER  BY player_name`

	rows, err := s.pool.Query(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: fetch roster: %w", err)
	}
	roster, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (campaign.RosterEntry, error) {
		var e campaign.RosterEntry
		err := row.Scan(&e.ID, &e.CampaignID, &e.PlayerName, &e.CharacterName, &e.CharacterID, &e.Aliases)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan roster: %w", err)
	}
	return roster, nil
}

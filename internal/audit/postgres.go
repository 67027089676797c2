package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Logger = (*PostgresLog)(nil)

// PostgresLog appends audit records to the ai_logs table. It shares the
// store's connection pool; the table is created by the store migration.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog wraps pool as a [Logger].
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// Write implements [Logger].
func (p *PostgresLog) Write(ctx context.Context, r Record) error {
	const q = `
		INSERT INTO ai_logs
		    (function_type, model, system_prompt, user_prompt, response_text,
		     parsed_result, tokens_in, tokens_out, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := p.pool.Exec(ctx, q,
		r.Function,
		r.Model,
		r.SystemPrompt,
		r.UserPrompt,
		r.ResponseText,
		r.ParsedResult,
		r.TokensIn,
		r.TokensOut,
		r.Duration.Milliseconds(),
		r.Error,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	return nil
}

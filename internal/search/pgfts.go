package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const (
	pgftsCountSQL = `
		SELECT count(*)
		FROM journal_entries e
		WHERE e.user_id = $1 AND e.fts @@ websearch_to_tsquery('english', $2)`

	pgftsSearchSQL = `
		SELECT e.id, e.title,
			ts_headline('english', e.content, websearch_to_tsquery('english', $2),
				'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet,
			e.created_at
		FROM journal_entries e
		WHERE e.user_id = $1 AND e.fts @@ websearch_to_tsquery('english', $2)
		ORDER BY ts_rank(e.fts, websearch_to_tsquery('english', $2)) DESC, e.created_at DESC
		LIMIT $3 OFFSET $4`
)

// Search ranks the caller's entries with websearch_to_tsquery and ts_rank,
// using ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if strings.TrimSpace(q.UserID) == "" {
		return nil, 0, fmt.Errorf("search: user id is required")
	}
	q = q.normalized()

	var total int
	if err := p.db.QueryRowContext(ctx, pgftsCountSQL, q.UserID, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := p.db.QueryContext(ctx, pgftsSearchSQL, q.UserID, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

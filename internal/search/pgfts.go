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

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Search ranks the owner's notes with ts_rank over the stored title/content
// vector plus a tag vector weighted between the two.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, ts_rank(doc, query) AS rank
		FROM (
			SELECT n.id, n.updated_at,
				n.fts || setweight(to_tsvector('simple', array_to_string(n.tags, ' ')), 'B') AS doc
			FROM notes n
			WHERE n.user_id = $1
		) candidates, plainto_tsquery('simple', $2) query
		WHERE doc @@ query
		ORDER BY rank DESC, updated_at DESC
		LIMIT $3
	`, q.UserID, q.Text, q.limit())
	if err != nil {
		return nil, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("pgfts scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PGSearch implements Searcher directly against Postgres as a fallback when
// Meilisearch is not configured or unreachable.
type PGSearch struct {
	db *sql.DB
}

// NewPGSearch creates a Postgres-backed searcher.
func NewPGSearch(db *sql.DB) *PGSearch {
	return &PGSearch{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PGSearch) Healthy() bool {
	return true
}

// Search matches live message bodies and author names case-insensitively.
// Redacted messages are excluded so the index never resurfaces them.
func (p *PGSearch) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := likePattern(q.Text)

	var total int
	if err := p.db.QueryRow(`
		SELECT COUNT(*)
		FROM messages
		WHERE is_deleted=FALSE
		  AND (body ILIKE $1 OR name ILIKE $1)
	`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search matches: %w", err)
	}

	rows, err := p.db.Query(`
		SELECT id, name, body
		FROM messages
		WHERE is_deleted=FALSE
		  AND (body ILIKE $1 OR name ILIKE $1)
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var item Result
		if err := rows.Scan(&item.ID, &item.Name, &item.Snippet); err != nil {
			return nil, 0, fmt.Errorf("scan search match: %w", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search matches: %w", err)
	}
	return results, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds the ILIKE pattern for a literal query. Postgres treats
// % and _ as wildcards inside the pattern, so the query text is escaped to
// match literally.
func likePattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

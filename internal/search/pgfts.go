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

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across posts and tags using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Posts sub-query
	if q.FilterType == "" || q.FilterType == ResultPost {
		postWhere := "p.fts @@ " + tsQuery + " AND p.status = 'published'"
		if q.FilterTag != "" {
			postWhere += fmt.Sprintf(
				" AND EXISTS (SELECT 1 FROM tag_is_used tu WHERE tu.post_id = p.post_id AND tu.tag_name = $%d)", argN)
			args = append(args, q.FilterTag)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, p.post_id::text AS id, p.topic AS title,
				ts_headline('english', coalesce(p.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				u.username AS author, p.post_type,
				ts_rank(p.fts, %s) AS rank
			FROM posts p
			JOIN users u ON u.uid = p.author
			WHERE %s`, tsQuery, tsQuery, postWhere))
	}

	// Tags sub-query
	if q.FilterType == "" || q.FilterType == ResultTag {
		tagWhere := "t.fts @@ " + tsQuery
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'tag'::text AS type, t.tag_name AS id, t.tag_name AS title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS author, ''::text AS post_type,
				ts_rank(t.fts, %s) AS rank
			FROM tags t
			WHERE %s`, tsQuery, tsQuery, tagWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, author, post_type
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Author, &r.PostType); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, []TagRecord, error) {
	postRows, err := p.db.QueryContext(ctx, `
		SELECT p.post_id::text, p.topic, p.content, u.username, p.post_type, p.status,
			coalesce(array_to_string(array_agg(tu.tag_name) FILTER (WHERE tu.tag_name IS NOT NULL), ','), '')
		FROM posts p
		JOIN users u ON u.uid = p.author
		LEFT JOIN tag_is_used tu ON tu.post_id = p.post_id
		WHERE p.status = 'published'
		GROUP BY p.post_id, p.topic, p.content, u.username, p.post_type, p.status
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var pr PostRecord
		var tagCSV string
		if err := postRows.Scan(&pr.ID, &pr.Topic, &pr.Content, &pr.Author, &pr.PostType, &pr.Status, &tagCSV); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		if tagCSV != "" {
			pr.Tags = strings.Split(tagCSV, ",")
		}
		posts = append(posts, pr)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}

	tagRows, err := p.db.QueryContext(ctx, `SELECT tag_name, tag_name, description FROM tags`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tags: %w", err)
	}
	defer tagRows.Close()

	tags := make([]TagRecord, 0)
	for tagRows.Next() {
		var tr TagRecord
		if err := tagRows.Scan(&tr.ID, &tr.Name, &tr.Description); err != nil {
			return nil, nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tr)
	}
	if err := tagRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tags: %w", err)
	}

	return posts, tags, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise; fn's error is returned as is.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

const postColumns = `id, slug, title, summary, content, published_at, created_at, updated_at`

// postFilterClause expects $1 = tag name and $2 = escaped search term.
const postFilterClause = `
	WHERE ($1::text = '' OR EXISTS (
		SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = p.id AND t.name = $1
	))
	AND ($2::text = '' OR p.title ILIKE '%' || $2 || '%' ESCAPE '\' OR p.content ILIKE '%' || $2 || '%' ESCAPE '\')
`

// ListPosts reads the total and the page from one snapshot so they agree.
func (s *PostgresStore) ListPosts(ctx context.Context, filter PostFilter) ([]PostSummary, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	items, total, err := listPosts(ctx, tx, filter)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit read tx: %w", err)
	}
	return items, total, nil
}

func listPosts(ctx context.Context, q queryer, filter PostFilter) ([]PostSummary, int, error) {
	search := EscapeLike(filter.Search)

	var total int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts p`+postFilterClause, filter.Tag, search).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.slug, p.title, p.summary, p.published_at,
			COALESCE((
				SELECT json_agg(t.name ORDER BY t.name)
				FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
				WHERE pt.post_id = p.id
			), '[]'::json),
			(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)
		FROM posts p`+postFilterClause+`
		ORDER BY p.published_at DESC, p.id DESC
		LIMIT $3 OFFSET $4
	`, filter.Tag, search, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]PostSummary, 0)
	for rows.Next() {
		var (
			item    PostSummary
			summary sql.NullString
			tagsRaw []byte
		)
		if err := rows.Scan(&item.ID, &item.Slug, &item.Title, &summary, &item.PublishedAt, &tagsRaw, &item.CommentCount); err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		item.Summary = nullableString(summary)
		if err := json.Unmarshal(tagsRaw, &item.Tags); err != nil {
			return nil, 0, fmt.Errorf("decode post tags: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate posts: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	return getPost(ctx, s.db, `WHERE slug=$1`, slug)
}

func (s *PostgresStore) GetPostByID(ctx context.Context, id int64) (Post, error) {
	return getPost(ctx, s.db, `WHERE id=$1`, id)
}

func (s *PostgresStore) ListTagNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, parent_id, author_name, content, created_at
		FROM comments
		WHERE post_id=$1
		ORDER BY created_at ASC, id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id int64) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, parent_id, author_name, content, created_at
		FROM comments
		WHERE id=$1
	`, id)
	return scanComment(row)
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	var parentID sql.NullInt64
	if comment.ParentID != nil {
		parentID = sql.NullInt64{Int64: *comment.ParentID, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (post_id, parent_id, author_name, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, post_id, parent_id, author_name, content, created_at
	`, comment.PostID, parentID, comment.AuthorName, comment.Content)
	created, err := scanComment(row)
	if err != nil {
		return Comment{}, translate(fmt.Errorf("insert comment: %w", err))
	}
	return created, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, email string) (Subscription, error) {
	var item Subscription
	err := s.db.QueryRowContext(ctx, `
		SELECT email, subscribed_at FROM email_subscriptions WHERE email=$1
	`, email).Scan(&item.Email, &item.SubscribedAt)
	return item, err
}

func (s *PostgresStore) InsertSubscription(ctx context.Context, email string) (Subscription, error) {
	var item Subscription
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO email_subscriptions (email) VALUES ($1)
		RETURNING email, subscribed_at
	`, email).Scan(&item.Email, &item.SubscribedAt)
	if err != nil {
		return Subscription{}, translate(fmt.Errorf("insert subscription: %w", err))
	}
	return item, nil
}

// DeleteSubscription reports whether a row was removed.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, email string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM email_subscriptions WHERE email=$1`, email)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subscription rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, subscribed_at FROM email_subscriptions
		ORDER BY subscribed_at DESC, email ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	items := make([]Subscription, 0)
	for rows.Next() {
		var item Subscription
		if err := rows.Scan(&item.Email, &item.SubscribedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return items, nil
}

// EscapeLike escapes LIKE wildcards so the term matches literally.
func EscapeLike(term string) string {
	if term == "" {
		return ""
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// getPost loads one post and its tag names. A missing post yields sql.ErrNoRows unwrapped.
func getPost(ctx context.Context, q queryer, where string, arg any) (Post, error) {
	var (
		post    Post
		summary sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts `+where, arg).Scan(
		&post.ID, &post.Slug, &post.Title, &summary, &post.Content,
		&post.PublishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	post.Summary = nullableString(summary)

	tags, err := postTagNames(ctx, q, post.ID)
	if err != nil {
		return Post{}, err
	}
	post.Tags = tags
	return post, nil
}

func postTagNames(ctx context.Context, q queryer, postID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.name
		FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id=$1
		ORDER BY t.name ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan post tag: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post tags: %w", err)
	}
	return names, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (Comment, error) {
	var (
		item     Comment
		parentID sql.NullInt64
	)
	if err := row.Scan(&item.ID, &item.PostID, &parentID, &item.AuthorName, &item.Content, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comment{}, err
		}
		return Comment{}, fmt.Errorf("scan comment: %w", err)
	}
	if parentID.Valid {
		id := parentID.Int64
		item.ParentID = &id
	}
	return item, nil
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tx is the write surface of a single transaction. Post writes and their tag
// associations go through one Tx so they commit or roll back together.
type Tx interface {
	GetPostBySlug(ctx context.Context, slug string) (Post, error)
	InsertPost(ctx context.Context, post Post) (Post, error)
	UpdatePost(ctx context.Context, post Post) (Post, error)
	DeletePost(ctx context.Context, postID int64) error
	FindTagByName(ctx context.Context, name string) (Tag, error)
	// CreateTag returns an error matching ErrDuplicate when the name already
	// exists, without aborting the transaction.
	CreateTag(ctx context.Context, name string) (Tag, error)
	ReplacePostTags(ctx context.Context, postID int64, tagIDs []int64) error
}

type pgTx struct {
	q queryer
}

func (t *pgTx) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	return getPost(ctx, t.q, `WHERE slug=$1 FOR UPDATE`, slug)
}

func (t *pgTx) InsertPost(ctx context.Context, post Post) (Post, error) {
	var (
		created Post
		summary sql.NullString
	)
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO posts (slug, title, summary, content)
		VALUES ($1, $2, $3, $4)
		RETURNING `+postColumns,
		post.Slug, post.Title, nullString(post.Summary), post.Content,
	).Scan(&created.ID, &created.Slug, &created.Title, &summary, &created.Content,
		&created.PublishedAt, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return Post{}, translate(fmt.Errorf("insert post: %w", err))
	}
	created.Summary = nullableString(summary)
	return created, nil
}

func (t *pgTx) UpdatePost(ctx context.Context, post Post) (Post, error) {
	var (
		updated Post
		summary sql.NullString
	)
	err := t.q.QueryRowContext(ctx, `
		UPDATE posts
		SET slug=$2, title=$3, summary=$4, content=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+postColumns,
		post.ID, post.Slug, post.Title, nullString(post.Summary), post.Content,
	).Scan(&updated.ID, &updated.Slug, &updated.Title, &summary, &updated.Content,
		&updated.PublishedAt, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, translate(fmt.Errorf("update post: %w", err))
	}
	updated.Summary = nullableString(summary)
	return updated, nil
}

// DeletePost removes the post with its comments and tag associations.
func (t *pgTx) DeletePost(ctx context.Context, postID int64) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM comments WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("delete post tags: %w", err)
	}
	result, err := t.q.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *pgTx) FindTagByName(ctx context.Context, name string) (Tag, error) {
	var tag Tag
	err := t.q.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name=$1`, name).Scan(&tag.ID, &tag.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tag{}, err
		}
		return Tag{}, fmt.Errorf("find tag: %w", err)
	}
	return tag, nil
}

func (t *pgTx) CreateTag(ctx context.Context, name string) (Tag, error) {
	var tag Tag
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO tags (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name
	`, name).Scan(&tag.ID, &tag.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, &UniqueViolationError{Constraint: ConstraintTagName}
	}
	if err != nil {
		return Tag{}, translate(fmt.Errorf("create tag: %w", err))
	}
	return tag, nil
}

func (t *pgTx) ReplacePostTags(ctx context.Context, postID int64, tagIDs []int64) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("clear post tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}

	values := make([]string, 0, len(tagIDs))
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, postID)
	for i, tagID := range tagIDs {
		values = append(values, fmt.Sprintf("($1, $%d)", i+2))
		args = append(args, tagID)
	}
	query := `INSERT INTO post_tags (post_id, tag_id) VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT DO NOTHING`
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return translate(fmt.Errorf("insert post tags: %w", err))
	}
	return nil
}

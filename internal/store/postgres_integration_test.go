package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPost(t *testing.T, s *PostgresStore, slug string, tags ...string) Post {
	t.Helper()
	ctx := context.Background()
	var created Post
	err := s.InTx(ctx, func(tx Tx) error {
		post, err := tx.InsertPost(ctx, Post{Slug: slug, Title: slug, Content: "content for " + slug})
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(tags))
		for _, name := range tags {
			tag, err := tx.FindTagByName(ctx, name)
			if errors.Is(err, sql.ErrNoRows) {
				tag, err = tx.CreateTag(ctx, name)
			}
			if err != nil {
				return err
			}
			ids = append(ids, tag.ID)
		}
		if err := tx.ReplacePostTags(ctx, post.ID, ids); err != nil {
			return err
		}
		created, err = tx.GetPostBySlug(ctx, slug)
		return err
	})
	require.NoError(t, err)
	return created
}

func TestPostgresPostLifecycle(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	post := createTestPost(t, s, "hello-world", "Go", "Databases")
	assert.Equal(t, []string{"Databases", "Go"}, post.Tags)
	assert.Nil(t, post.Summary)

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.InsertPost(ctx, Post{Slug: "hello-world", Title: "dup", Content: "x"})
		return err
	})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.True(t, IsConstraint(err, ConstraintPostSlug))

	summary := "short"
	err = s.InTx(ctx, func(tx Tx) error {
		post.Slug = "hello-again"
		post.Summary = &summary
		if _, err := tx.UpdatePost(ctx, post); err != nil {
			return err
		}
		return tx.ReplacePostTags(ctx, post.ID, nil)
	})
	require.NoError(t, err)

	_, err = s.GetPostBySlug(ctx, "hello-world")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	updated, err := s.GetPostBySlug(ctx, "hello-again")
	require.NoError(t, err)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, "short", *updated.Summary)
	assert.Empty(t, updated.Tags)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	names, err := s.ListTagNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Databases", "Go"}, names, "tags outlive their associations")
}

func TestPostgresRolledBackTxLeavesNoTrace(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertPost(ctx, Post{Slug: "ghost", Title: "ghost", Content: "x"}); err != nil {
			return err
		}
		if _, err := tx.CreateTag(ctx, "Phantom"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetPostBySlug(ctx, "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	names, err := s.ListTagNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPostgresCreateTagConflictKeepsTxUsable(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()
	createTestPost(t, s, "first", "React")

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.CreateTag(ctx, "React")
		require.ErrorIs(t, err, ErrDuplicate)
		tag, err := tx.FindTagByName(ctx, "React")
		require.NoError(t, err)
		assert.Equal(t, "React", tag.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresListPostsFiltersAndCounts(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	first := createTestPost(t, s, "react-hooks", "React")
	createTestPost(t, s, "go-generics", "Go")
	createTestPost(t, s, "percent-100", "Go")

	_, err := s.InsertComment(ctx, Comment{PostID: first.ID, AuthorName: "Ann", Content: "nice"})
	require.NoError(t, err)

	items, total, err := s.ListPosts(ctx, PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, "percent-100", items[0].Slug, "newest first")

	items, total, err = s.ListPosts(ctx, PostFilter{Tag: "React", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].CommentCount)
	assert.Equal(t, []string{"React"}, items[0].Tags)

	_, total, err = s.ListPosts(ctx, PostFilter{Search: "GENERICS", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = s.ListPosts(ctx, PostFilter{Search: "%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total, "wildcards in the term match literally")

	items, total, err = s.ListPosts(ctx, PostFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 1)
}

func TestPostgresListPostsCountAndPageShareSnapshot(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	createTestPost(t, s, "before")

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, total, err := listPosts(ctx, tx, PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	createTestPost(t, s, "during")

	items, total, err := listPosts(ctx, tx, PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "concurrent insert stays invisible to the open listing")
	assert.Len(t, items, total)

	_, total, err = s.ListPosts(ctx, PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestPostgresCommentParentMustShareThePost(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	a := createTestPost(t, s, "post-a")
	b := createTestPost(t, s, "post-b")

	root, err := s.InsertComment(ctx, Comment{PostID: a.ID, AuthorName: "Ann", Content: "root"})
	require.NoError(t, err)

	reply, err := s.InsertComment(ctx, Comment{PostID: a.ID, ParentID: &root.ID, AuthorName: "Bob", Content: "reply"})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	_, err = s.InsertComment(ctx, Comment{PostID: b.ID, ParentID: &root.ID, AuthorName: "Eve", Content: "cross"})
	require.ErrorIs(t, err, ErrForeignKey)
	assert.True(t, IsConstraint(err, ConstraintCommentParent))

	comments, err := s.ListComments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, root.ID, comments[0].ID)

	err = s.InTx(ctx, func(tx Tx) error { return tx.DeletePost(ctx, a.ID) })
	require.NoError(t, err)
	_, err = s.GetComment(ctx, root.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPostgresSubscriptions(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	created, err := s.InsertSubscription(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.False(t, created.SubscribedAt.IsZero())

	_, err = s.InsertSubscription(ctx, "reader@example.com")
	require.ErrorIs(t, err, ErrDuplicate)

	list, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := s.DeleteSubscription(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteSubscription(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetSubscription(ctx, "reader@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

package memdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/api/internal/store"
)

// tickingClock advances one second per call so ordering by timestamp is deterministic.
func tickingClock() func() time.Time {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func insertPost(t *testing.T, s *Store, slug string, tagNames ...string) store.Post {
	t.Helper()
	ctx := context.Background()
	var out store.Post
	err := s.InTx(ctx, func(tx store.Tx) error {
		post, err := tx.InsertPost(ctx, store.Post{Slug: slug, Title: "Title " + slug, Content: "Body of " + slug})
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(tagNames))
		for _, name := range tagNames {
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
		out, err = tx.GetPostBySlug(ctx, slug)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.InsertPost(ctx, store.Post{Slug: "ghost", Title: "Ghost", Content: "x"}); err != nil {
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

func TestInsertPostRejectsDuplicateSlug(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()
	insertPost(t, s, "taken")

	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertPost(ctx, store.Post{Slug: "taken", Title: "again", Content: "x"})
		return err
	})
	require.ErrorIs(t, err, store.ErrDuplicate)
	assert.True(t, store.IsConstraint(err, store.ConstraintPostSlug))
}

func TestCreateTagReportsDuplicate(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()
	insertPost(t, s, "first", "Go")

	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.CreateTag(ctx, "Go")
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestListPostsOrderingFilteringAndPaging(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()

	insertPost(t, s, "one", "Go")
	insertPost(t, s, "two", "React")
	insertPost(t, s, "three", "Go", "React")

	items, total, err := s.ListPosts(ctx, store.PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"three", "two", "one"}, []string{items[0].Slug, items[1].Slug, items[2].Slug})
	assert.Equal(t, []string{"Go", "React"}, items[0].Tags)

	items, total, err = s.ListPosts(ctx, store.PostFilter{Tag: "Go", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = s.ListPosts(ctx, store.PostFilter{Tag: "Go", Search: "BODY OF ONE", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "one", items[0].Slug)

	items, total, err = s.ListPosts(ctx, store.PostFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "one", items[0].Slug)

	items, total, err = s.ListPosts(ctx, store.PostFilter{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, items)
}

func TestInsertCommentEnforcesSamePostParent(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()
	a := insertPost(t, s, "a")
	b := insertPost(t, s, "b")

	root, err := s.InsertComment(ctx, store.Comment{PostID: a.ID, AuthorName: "Ann", Content: "root"})
	require.NoError(t, err)

	_, err = s.InsertComment(ctx, store.Comment{PostID: b.ID, ParentID: &root.ID, AuthorName: "Eve", Content: "x"})
	require.ErrorIs(t, err, store.ErrForeignKey)
	assert.True(t, store.IsConstraint(err, store.ConstraintCommentParent))

	_, err = s.InsertComment(ctx, store.Comment{PostID: 999, AuthorName: "Eve", Content: "x"})
	require.ErrorIs(t, err, store.ErrForeignKey)
	assert.True(t, store.IsConstraint(err, store.ConstraintCommentPost))
}

func TestDeletePostCascades(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()
	post := insertPost(t, s, "doomed", "Go")
	other := insertPost(t, s, "survivor", "Go")

	_, err := s.InsertComment(ctx, store.Comment{PostID: post.ID, AuthorName: "Ann", Content: "bye"})
	require.NoError(t, err)
	kept, err := s.InsertComment(ctx, store.Comment{PostID: other.ID, AuthorName: "Ann", Content: "stay"})
	require.NoError(t, err)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.DeletePost(ctx, post.ID) }))

	comments, err := s.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	_, err = s.GetComment(ctx, kept.ID)
	assert.NoError(t, err)

	names, err := s.ListTagNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, names)

	err = s.InTx(ctx, func(tx store.Tx) error { return tx.DeletePost(ctx, post.ID) })
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSubscriptions(t *testing.T) {
	s := NewWithClock(tickingClock())
	ctx := context.Background()

	_, err := s.InsertSubscription(ctx, "old@example.com")
	require.NoError(t, err)
	_, err = s.InsertSubscription(ctx, "new@example.com")
	require.NoError(t, err)

	_, err = s.InsertSubscription(ctx, "new@example.com")
	assert.ErrorIs(t, err, store.ErrDuplicate)

	list, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new@example.com", list[0].Email)

	deleted, err := s.DeleteSubscription(ctx, "old@example.com")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteSubscription(ctx, "old@example.com")
	require.NoError(t, err)
	assert.False(t, deleted)
}

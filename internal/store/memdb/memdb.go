// Package memdb is an in-memory store with the same semantics as the
// Postgres store. It backs the -dev mode of cmd/api and the service tests.
package memdb

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"quill/api/internal/store"
)

type Store struct {
	mu   sync.Mutex
	now  func() time.Time
	data *dataset
}

type dataset struct {
	posts         map[int64]store.Post
	tags          map[int64]store.Tag
	postTags      map[int64]map[int64]struct{}
	comments      []store.Comment
	subscriptions map[string]store.Subscription

	nextPostID    int64
	nextTagID     int64
	nextCommentID int64
}

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock uses now for every generated timestamp.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now: now,
		data: &dataset{
			posts:         make(map[int64]store.Post),
			tags:          make(map[int64]store.Tag),
			postTags:      make(map[int64]map[int64]struct{}),
			subscriptions: make(map[string]store.Subscription),
		},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// InTx applies fn to a copy of the data and keeps the copy only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(&tx{d: working, now: s.now}); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) ListPosts(ctx context.Context, filter store.PostFilter) ([]store.PostSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data

	search := strings.ToLower(filter.Search)
	matched := make([]store.Post, 0, len(d.posts))
	for _, post := range d.posts {
		if filter.Tag != "" && !d.hasTag(post.ID, filter.Tag) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(post.Title), search) &&
			!strings.Contains(strings.ToLower(post.Content), search) {
			continue
		}
		matched = append(matched, post)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PublishedAt.Equal(matched[j].PublishedAt) {
			return matched[i].PublishedAt.After(matched[j].PublishedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	items := make([]store.PostSummary, 0, end-start)
	for _, post := range matched[start:end] {
		items = append(items, store.PostSummary{
			ID:           post.ID,
			Slug:         post.Slug,
			Title:        post.Title,
			Summary:      copyString(post.Summary),
			PublishedAt:  post.PublishedAt,
			Tags:         d.tagNames(post.ID),
			CommentCount: d.commentCount(post.ID),
		})
	}
	return items, total, nil
}

func (s *Store) GetPostBySlug(ctx context.Context, slug string) (store.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.postBySlug(slug)
}

func (s *Store) GetPostByID(ctx context.Context, id int64) (store.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.data.posts[id]
	if !ok {
		return store.Post{}, sql.ErrNoRows
	}
	return s.data.withTags(post), nil
}

func (s *Store) ListTagNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data.tags))
	for _, tag := range s.data.tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) ListComments(ctx context.Context, postID int64) ([]store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]store.Comment, 0)
	for _, comment := range s.data.comments {
		if comment.PostID == postID {
			items = append(items, copyComment(comment))
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) GetComment(ctx context.Context, id int64) (store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.data.comment(id)
	if !ok {
		return store.Comment{}, sql.ErrNoRows
	}
	return copyComment(comment), nil
}

func (s *Store) InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data

	if _, ok := d.posts[comment.PostID]; !ok {
		return store.Comment{}, &store.ForeignKeyViolationError{Constraint: store.ConstraintCommentPost}
	}
	if comment.ParentID != nil {
		parent, ok := d.comment(*comment.ParentID)
		if !ok || parent.PostID != comment.PostID {
			return store.Comment{}, &store.ForeignKeyViolationError{Constraint: store.ConstraintCommentParent}
		}
	}

	d.nextCommentID++
	comment.ID = d.nextCommentID
	comment.ParentID = copyID(comment.ParentID)
	comment.CreatedAt = s.now()
	d.comments = append(d.comments, comment)
	return copyComment(comment), nil
}

func (s *Store) GetSubscription(ctx context.Context, email string) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.data.subscriptions[email]
	if !ok {
		return store.Subscription{}, sql.ErrNoRows
	}
	return item, nil
}

func (s *Store) InsertSubscription(ctx context.Context, email string) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.subscriptions[email]; ok {
		return store.Subscription{}, &store.UniqueViolationError{Constraint: store.ConstraintSubscriptionEmail}
	}
	item := store.Subscription{Email: email, SubscribedAt: s.now()}
	s.data.subscriptions[email] = item
	return item, nil
}

func (s *Store) DeleteSubscription(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.subscriptions[email]; !ok {
		return false, nil
	}
	delete(s.data.subscriptions, email)
	return true, nil
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]store.Subscription, 0, len(s.data.subscriptions))
	for _, item := range s.data.subscriptions {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].SubscribedAt.Equal(items[j].SubscribedAt) {
			return items[i].SubscribedAt.After(items[j].SubscribedAt)
		}
		return items[i].Email < items[j].Email
	})
	return items, nil
}

// tx operates on a private copy of the dataset while Store.mu is held.
type tx struct {
	d   *dataset
	now func() time.Time
}

func (t *tx) GetPostBySlug(ctx context.Context, slug string) (store.Post, error) {
	return t.d.postBySlug(slug)
}

func (t *tx) InsertPost(ctx context.Context, post store.Post) (store.Post, error) {
	if _, err := t.d.postBySlug(post.Slug); err == nil {
		return store.Post{}, &store.UniqueViolationError{Constraint: store.ConstraintPostSlug}
	}
	now := t.now()
	t.d.nextPostID++
	created := store.Post{
		ID:          t.d.nextPostID,
		Slug:        post.Slug,
		Title:       post.Title,
		Summary:     copyString(post.Summary),
		Content:     post.Content,
		PublishedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.d.posts[created.ID] = created
	return created, nil
}

func (t *tx) UpdatePost(ctx context.Context, post store.Post) (store.Post, error) {
	current, ok := t.d.posts[post.ID]
	if !ok {
		return store.Post{}, sql.ErrNoRows
	}
	if other, err := t.d.postBySlug(post.Slug); err == nil && other.ID != post.ID {
		return store.Post{}, &store.UniqueViolationError{Constraint: store.ConstraintPostSlug}
	}
	current.Slug = post.Slug
	current.Title = post.Title
	current.Summary = copyString(post.Summary)
	current.Content = post.Content
	current.UpdatedAt = t.now()
	t.d.posts[current.ID] = current
	return current, nil
}

func (t *tx) DeletePost(ctx context.Context, postID int64) error {
	if _, ok := t.d.posts[postID]; !ok {
		return sql.ErrNoRows
	}
	kept := t.d.comments[:0]
	for _, comment := range t.d.comments {
		if comment.PostID != postID {
			kept = append(kept, comment)
		}
	}
	t.d.comments = kept
	delete(t.d.postTags, postID)
	delete(t.d.posts, postID)
	return nil
}

func (t *tx) FindTagByName(ctx context.Context, name string) (store.Tag, error) {
	for _, tag := range t.d.tags {
		if tag.Name == name {
			return tag, nil
		}
	}
	return store.Tag{}, sql.ErrNoRows
}

func (t *tx) CreateTag(ctx context.Context, name string) (store.Tag, error) {
	if _, err := t.FindTagByName(ctx, name); err == nil {
		return store.Tag{}, &store.UniqueViolationError{Constraint: store.ConstraintTagName}
	}
	t.d.nextTagID++
	tag := store.Tag{ID: t.d.nextTagID, Name: name}
	t.d.tags[tag.ID] = tag
	return tag, nil
}

func (t *tx) ReplacePostTags(ctx context.Context, postID int64, tagIDs []int64) error {
	if _, ok := t.d.posts[postID]; !ok {
		return &store.ForeignKeyViolationError{Constraint: "post_tags_post_id_fkey"}
	}
	set := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		if _, ok := t.d.tags[id]; !ok {
			return &store.ForeignKeyViolationError{Constraint: "post_tags_tag_id_fkey"}
		}
		set[id] = struct{}{}
	}
	t.d.postTags[postID] = set
	return nil
}

func (d *dataset) clone() *dataset {
	out := &dataset{
		posts:         make(map[int64]store.Post, len(d.posts)),
		tags:          make(map[int64]store.Tag, len(d.tags)),
		postTags:      make(map[int64]map[int64]struct{}, len(d.postTags)),
		comments:      make([]store.Comment, len(d.comments)),
		subscriptions: make(map[string]store.Subscription, len(d.subscriptions)),
		nextPostID:    d.nextPostID,
		nextTagID:     d.nextTagID,
		nextCommentID: d.nextCommentID,
	}
	for id, post := range d.posts {
		out.posts[id] = post
	}
	for id, tag := range d.tags {
		out.tags[id] = tag
	}
	for postID, set := range d.postTags {
		copied := make(map[int64]struct{}, len(set))
		for tagID := range set {
			copied[tagID] = struct{}{}
		}
		out.postTags[postID] = copied
	}
	copy(out.comments, d.comments)
	for email, item := range d.subscriptions {
		out.subscriptions[email] = item
	}
	return out
}

func (d *dataset) postBySlug(slug string) (store.Post, error) {
	for _, post := range d.posts {
		if post.Slug == slug {
			return d.withTags(post), nil
		}
	}
	return store.Post{}, sql.ErrNoRows
}

func (d *dataset) withTags(post store.Post) store.Post {
	post.Summary = copyString(post.Summary)
	post.Tags = d.tagNames(post.ID)
	return post
}

func (d *dataset) tagNames(postID int64) []string {
	names := make([]string, 0, len(d.postTags[postID]))
	for tagID := range d.postTags[postID] {
		names = append(names, d.tags[tagID].Name)
	}
	sort.Strings(names)
	return names
}

func (d *dataset) hasTag(postID int64, name string) bool {
	for tagID := range d.postTags[postID] {
		if d.tags[tagID].Name == name {
			return true
		}
	}
	return false
}

func (d *dataset) commentCount(postID int64) int {
	count := 0
	for _, comment := range d.comments {
		if comment.PostID == postID {
			count++
		}
	}
	return count
}

func (d *dataset) comment(id int64) (store.Comment, bool) {
	for _, comment := range d.comments {
		if comment.ID == id {
			return comment, true
		}
	}
	return store.Comment{}, false
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func copyID(value *int64) *int64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func copyComment(comment store.Comment) store.Comment {
	comment.ParentID = copyID(comment.ParentID)
	return comment
}

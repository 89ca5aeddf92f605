package store

import "time"

type Post struct {
	ID          int64
	Slug        string
	Title       string
	Summary     *string
	Content     string
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Tags holds tag names sorted ascending. Writes ignore it; associations go through ReplacePostTags.
	Tags []string
}

type PostSummary struct {
	ID           int64
	Slug         string
	Title        string
	Summary      *string
	PublishedAt  time.Time
	Tags         []string
	CommentCount int
}

// PostFilter narrows ListPosts. Empty Tag and Search match everything.
type PostFilter struct {
	Tag    string
	Search string
	Limit  int
	Offset int
}

type Tag struct {
	ID   int64
	Name string
}

type Comment struct {
	ID         int64
	PostID     int64
	ParentID   *int64
	AuthorName string
	Content    string
	CreatedAt  time.Time
}

type Subscription struct {
	Email        string
	SubscribedAt time.Time
}

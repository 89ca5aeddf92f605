package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"quill/api/internal/blog"
	"quill/api/internal/store"
)

type ListPostsInput struct {
	Page   int    `json:"page" validate:"min=1,max=1000000000"`
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Tag    string `json:"tag" validate:"max=100"`
	Search string `json:"search" validate:"max=200"`
}

type CreatePostInput struct {
	Slug    string   `json:"slug" validate:"required,max=200,slug"`
	Title   string   `json:"title" validate:"required,max=200"`
	Summary *string  `json:"summary" validate:"omitempty,max=500"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"omitempty,dive,required,max=100"`
}

// UpdatePostInput applies only the fields present in the request. Tags nil
// leaves associations alone; an empty non-nil slice clears them.
type UpdatePostInput struct {
	Slug    *string        `json:"slug" validate:"omitempty,min=1,max=200,slug"`
	Title   *string        `json:"title" validate:"omitempty,min=1,max=200"`
	Summary OptionalString `json:"summary" validate:"max=500"`
	Content *string        `json:"content" validate:"omitempty,min=1"`
	Tags    []string       `json:"tags" validate:"omitempty,dive,required,max=100"`
}

type PostListItem struct {
	ID           int64     `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Summary      *string   `json:"summary"`
	PublishedAt  time.Time `json:"publishedAt"`
	Tags         []string  `json:"tags"`
	CommentCount int       `json:"commentCount"`
}

type PostList struct {
	Posts []PostListItem `json:"posts"`
	Total int            `json:"total"`
}

type PostView struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Summary     *string   `json:"summary"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"publishedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Tags        []string  `json:"tags"`
}

func (s *Service) ListPosts(ctx context.Context, in ListPostsInput) (PostList, error) {
	if err := validateInput(in); err != nil {
		return PostList{}, err
	}
	items, total, err := s.store.ListPosts(ctx, store.PostFilter{
		Tag:    in.Tag,
		Search: in.Search,
		Limit:  in.Limit,
		Offset: (in.Page - 1) * in.Limit,
	})
	if err != nil {
		return PostList{}, err
	}

	posts := make([]PostListItem, 0, len(items))
	for _, item := range items {
		posts = append(posts, PostListItem{
			ID:           item.ID,
			Slug:         item.Slug,
			Title:        item.Title,
			Summary:      item.Summary,
			PublishedAt:  item.PublishedAt,
			Tags:         nonNil(item.Tags),
			CommentCount: item.CommentCount,
		})
	}
	return PostList{Posts: posts, Total: total}, nil
}

func (s *Service) GetPost(ctx context.Context, slug string) (PostView, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PostView{}, postNotFound(slug)
		}
		return PostView{}, err
	}
	return toPostView(post), nil
}

func (s *Service) ListTagNames(ctx context.Context) ([]string, error) {
	names, err := s.store.ListTagNames(ctx)
	if err != nil {
		return nil, err
	}
	return nonNil(names), nil
}

func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (PostView, error) {
	if err := validateInput(in); err != nil {
		return PostView{}, err
	}

	var view PostView
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetPostBySlug(ctx, in.Slug); err == nil {
			return postSlugTaken(in.Slug)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		post, err := tx.InsertPost(ctx, store.Post{
			Slug:    in.Slug,
			Title:   in.Title,
			Summary: emptyToNil(in.Summary),
			Content: in.Content,
		})
		if err != nil {
			if store.IsConstraint(err, store.ConstraintPostSlug) {
				return postSlugTaken(in.Slug)
			}
			return err
		}

		if err := replaceTags(ctx, tx, post.ID, in.Tags); err != nil {
			return err
		}

		created, err := tx.GetPostBySlug(ctx, post.Slug)
		if err != nil {
			return err
		}
		view = toPostView(created)
		return nil
	})
	if err != nil {
		return PostView{}, err
	}
	return view, nil
}

func (s *Service) UpdatePost(ctx context.Context, slug string, in UpdatePostInput) (PostView, error) {
	if err := validateInput(in); err != nil {
		return PostView{}, err
	}

	var view PostView
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		post, err := tx.GetPostBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return postNotFound(slug)
			}
			return err
		}

		if in.Slug != nil && *in.Slug != post.Slug {
			other, err := tx.GetPostBySlug(ctx, *in.Slug)
			if err == nil && other.ID != post.ID {
				return postSlugTaken(*in.Slug)
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			post.Slug = *in.Slug
		}
		if in.Title != nil {
			post.Title = *in.Title
		}
		if in.Content != nil {
			post.Content = *in.Content
		}
		if in.Summary.Set {
			post.Summary = in.Summary.Ptr()
		}

		updated, err := tx.UpdatePost(ctx, post)
		if err != nil {
			if store.IsConstraint(err, store.ConstraintPostSlug) {
				return postSlugTaken(post.Slug)
			}
			return err
		}

		if in.Tags != nil {
			if err := replaceTags(ctx, tx, updated.ID, in.Tags); err != nil {
				return err
			}
		}

		reloaded, err := tx.GetPostBySlug(ctx, updated.Slug)
		if err != nil {
			return err
		}
		view = toPostView(reloaded)
		return nil
	})
	if err != nil {
		return PostView{}, err
	}
	return view, nil
}

// DeletePost removes the post together with its comments and tag links.
// Tags themselves stay.
func (s *Service) DeletePost(ctx context.Context, slug string) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		post, err := tx.GetPostBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return postNotFound(slug)
			}
			return err
		}
		if err := tx.DeletePost(ctx, post.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return postNotFound(slug)
			}
			return err
		}
		return nil
	})
}

func replaceTags(ctx context.Context, tx store.Tx, postID int64, names []string) error {
	tags, err := blog.ReconcileTags(ctx, tx, names)
	if err != nil {
		return err
	}
	return tx.ReplacePostTags(ctx, postID, blog.TagIDs(tags))
}

func toPostView(post store.Post) PostView {
	return PostView{
		ID:          post.ID,
		Slug:        post.Slug,
		Title:       post.Title,
		Summary:     post.Summary,
		Content:     post.Content,
		PublishedAt: post.PublishedAt,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
		Tags:        nonNil(post.Tags),
	}
}

func emptyToNil(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

package app

import (
	"context"
	"database/sql"
	"errors"

	log "github.com/sirupsen/logrus"

	"quill/api/internal/blog"
	"quill/api/internal/store"
)

type CreateCommentInput struct {
	PostID     int64  `json:"postId" validate:"required,gt=0"`
	ParentID   *int64 `json:"parentId" validate:"omitempty,gt=0"`
	AuthorName string `json:"authorName" validate:"required,max=100"`
	Content    string `json:"content" validate:"required,max=2000"`
}

// ListComments returns the post's comments as a forest of threads, oldest first.
func (s *Service) ListComments(ctx context.Context, slug string) ([]*blog.CommentNode, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, postNotFound(slug)
		}
		return nil, err
	}

	rows, err := s.store.ListComments(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	tree := blog.BuildCommentTree(rows)
	if dropped := len(rows) - blog.CountNodes(tree); dropped > 0 {
		log.WithFields(log.Fields{"post_id": post.ID, "dropped": dropped}).Warn("[comments] orphaned comments left out of thread")
	}
	return tree, nil
}

func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (*blog.CommentNode, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if _, err := s.store.GetPostByID(ctx, in.PostID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Post with id %d not found", in.PostID)
		}
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.store.GetComment(ctx, *in.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("Parent comment with id %d not found", *in.ParentID)
			}
			return nil, err
		}
		if parent.PostID != in.PostID {
			return nil, parentOnOtherPost()
		}
	}

	created, err := s.store.InsertComment(ctx, store.Comment{
		PostID:     in.PostID,
		ParentID:   in.ParentID,
		AuthorName: in.AuthorName,
		Content:    in.Content,
	})
	if err != nil {
		switch {
		case store.IsConstraint(err, store.ConstraintCommentParent):
			return nil, parentOnOtherPost()
		case store.IsConstraint(err, store.ConstraintCommentPost):
			return nil, notFound("Post with id %d not found", in.PostID)
		}
		return nil, err
	}
	return blog.NewCommentNode(created), nil
}

func parentOnOtherPost() *DomainError {
	return badRequest("Parent comment must belong to the same post")
}

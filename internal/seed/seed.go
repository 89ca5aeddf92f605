// Package seed loads the demo content used by local environments.
package seed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"quill/api/internal/app"
)

const welcomeContent = `# Welcome to My Blog

This is my personal blog where I share my thoughts on web development, technology, and programming.

## What to Expect

- Technical articles about React, TypeScript, and modern web development
- Personal projects and experiments
- Lessons learned from building software

Stay tuned for more content!`

const typescriptContent = "# Getting Started with TypeScript\n\n" +
	"TypeScript is a typed superset of JavaScript that compiles to plain JavaScript.\n\n" +
	"## Why TypeScript?\n\n" +
	"1. **Type Safety**: Catch errors at compile time\n" +
	"2. **Better IDE Support**: Autocomplete and refactoring\n" +
	"3. **Improved Maintainability**: Self-documenting code\n\n" +
	"## Installation\n\n" +
	"```bash\nnpm install -g typescript\n```\n\n" +
	"Let's dive in!"

const SubscriberEmail = "test@example.com"

func strPtr(v string) *string { return &v }

// Posts is the demo content. Tags are created on first use.
var Posts = []app.CreatePostInput{
	{
		Slug:    "welcome-to-my-blog",
		Title:   "Welcome to My Blog",
		Summary: strPtr("Introduction to this blog and what to expect"),
		Content: welcomeContent,
		Tags:    []string{"React", "Web Development"},
	},
	{
		Slug:    "getting-started-with-typescript",
		Title:   "Getting Started with TypeScript",
		Summary: strPtr("A beginner-friendly guide to TypeScript"),
		Content: typescriptContent,
		Tags:    []string{"TypeScript", "Web Development"},
	},
}

// Run inserts the demo posts, a two-comment thread on the first post and one
// subscriber. Content that already exists is left alone, so Run can be
// repeated.
func Run(ctx context.Context, service *app.Service) error {
	var first app.PostView
	for i, in := range Posts {
		post, err := ensurePost(ctx, service, in)
		if err != nil {
			return err
		}
		if i == 0 {
			first = post
		}
	}

	if err := ensureThread(ctx, service, first); err != nil {
		return err
	}

	_, err := service.Subscribe(ctx, app.SubscriptionInput{Email: SubscriberEmail})
	switch {
	case err == nil:
		log.Infof("[seed] subscribed %s", SubscriberEmail)
	case isStatus(err, http.StatusConflict):
		log.Debugf("[seed] %s already subscribed", SubscriberEmail)
	default:
		return fmt.Errorf("seed subscription: %w", err)
	}

	log.Info("[seed] completed")
	return nil
}

func ensurePost(ctx context.Context, service *app.Service, in app.CreatePostInput) (app.PostView, error) {
	post, err := service.CreatePost(ctx, in)
	if err == nil {
		log.Infof("[seed] created post %s", post.Slug)
		return post, nil
	}
	if !isStatus(err, http.StatusConflict) {
		return app.PostView{}, fmt.Errorf("seed post %s: %w", in.Slug, err)
	}
	post, err = service.GetPost(ctx, in.Slug)
	if err != nil {
		return app.PostView{}, fmt.Errorf("load post %s: %w", in.Slug, err)
	}
	log.Debugf("[seed] post %s already exists", in.Slug)
	return post, nil
}

func ensureThread(ctx context.Context, service *app.Service, post app.PostView) error {
	existing, err := service.ListComments(ctx, post.Slug)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	root, err := service.CreateComment(ctx, app.CreateCommentInput{
		PostID:     post.ID,
		AuthorName: "John Doe",
		Content:    "Great introduction! Looking forward to more posts.",
	})
	if err != nil {
		return fmt.Errorf("seed comment: %w", err)
	}
	if _, err := service.CreateComment(ctx, app.CreateCommentInput{
		PostID:     post.ID,
		ParentID:   &root.ID,
		AuthorName: "Blog Author",
		Content:    "Thanks John! More content coming soon.",
	}); err != nil {
		return fmt.Errorf("seed reply: %w", err)
	}
	log.Infof("[seed] created comment thread on %s", post.Slug)
	return nil
}

func isStatus(err error, status int) bool {
	var domainErr *app.DomainError
	return errors.As(err, &domainErr) && domainErr.Status == status
}

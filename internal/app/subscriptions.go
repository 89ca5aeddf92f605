package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"quill/api/internal/store"
)

type SubscriptionInput struct {
	Email string `json:"email" validate:"required,max=254,email"`
}

type SubscriptionView struct {
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Subscribe(ctx context.Context, in SubscriptionInput) (SubscriptionView, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return SubscriptionView{}, err
	}

	if _, err := s.store.GetSubscription(ctx, in.Email); err == nil {
		return SubscriptionView{}, conflict("Email is already subscribed")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return SubscriptionView{}, err
	}

	created, err := s.store.InsertSubscription(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return SubscriptionView{}, conflict("Email is already subscribed")
		}
		return SubscriptionView{}, err
	}

	s.sendConfirmation(created.Email)
	return toSubscriptionView(created), nil
}

func (s *Service) Unsubscribe(ctx context.Context, in SubscriptionInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return err
	}

	deleted, err := s.store.DeleteSubscription(ctx, in.Email)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Email subscription not found")
	}
	return nil
}

func (s *Service) ListSubscriptions(ctx context.Context) ([]SubscriptionView, error) {
	items, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]SubscriptionView, 0, len(items))
	for _, item := range items {
		views = append(views, toSubscriptionView(item))
	}
	return views, nil
}

func toSubscriptionView(item store.Subscription) SubscriptionView {
	return SubscriptionView{Email: item.Email, SubscribedAt: item.SubscribedAt}
}

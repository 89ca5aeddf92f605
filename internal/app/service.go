package app

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"quill/api/internal/store"
)

// DataStore is implemented by *store.PostgresStore and *memdb.Store.
type DataStore interface {
	Ping(ctx context.Context) error
	InTx(ctx context.Context, fn func(store.Tx) error) error

	ListPosts(ctx context.Context, filter store.PostFilter) ([]store.PostSummary, int, error)
	GetPostBySlug(ctx context.Context, slug string) (store.Post, error)
	GetPostByID(ctx context.Context, id int64) (store.Post, error)
	ListTagNames(ctx context.Context) ([]string, error)

	ListComments(ctx context.Context, postID int64) ([]store.Comment, error)
	GetComment(ctx context.Context, id int64) (store.Comment, error)
	InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error)

	GetSubscription(ctx context.Context, email string) (store.Subscription, error)
	InsertSubscription(ctx context.Context, email string) (store.Subscription, error)
	DeleteSubscription(ctx context.Context, email string) (bool, error)
	ListSubscriptions(ctx context.Context) ([]store.Subscription, error)
}

// Mailer delivers subscriber mail. *email.Service implements it.
type Mailer interface {
	IsConfigured() bool
	SendSubscriptionConfirmation(to string) error
}

type Service struct {
	store  DataStore
	mailer Mailer

	mailWG sync.WaitGroup
}

// New wires the services to a store. mailer may be nil.
func New(dataStore DataStore, mailer Mailer) *Service {
	return &Service{store: dataStore, mailer: mailer}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Wait blocks until queued confirmation mails have been handed to the relay.
func (s *Service) Wait() {
	s.mailWG.Wait()
}

func (s *Service) sendConfirmation(email string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		if err := s.mailer.SendSubscriptionConfirmation(email); err != nil {
			log.WithError(err).WithField("email", email).Warn("[subscriptions] confirmation email failed")
			return
		}
		log.WithField("email", email).Debug("[subscriptions] confirmation email sent")
	}()
}

package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicate  = errors.New("duplicate key")
	ErrForeignKey = errors.New("foreign key violation")
)

// Constraint names declared in db/migrations.
const (
	ConstraintPostSlug          = "posts_slug_key"
	ConstraintTagName           = "tags_name_key"
	ConstraintPostTag           = "post_tags_pkey"
	ConstraintSubscriptionEmail = "email_subscriptions_pkey"
	ConstraintCommentPost       = "comments_post_id_fkey"
	ConstraintCommentParent     = "comments_parent_same_post_fkey"
)

// UniqueViolationError reports a write rejected by a unique constraint.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s", e.Constraint)
}

func (e *UniqueViolationError) Is(target error) bool { return target == ErrDuplicate }

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// ForeignKeyViolationError reports a write that referenced a missing row.
type ForeignKeyViolationError struct {
	Constraint string
	Err        error
}

func (e *ForeignKeyViolationError) Error() string {
	return fmt.Sprintf("foreign key violation on %s", e.Constraint)
}

func (e *ForeignKeyViolationError) Is(target error) bool { return target == ErrForeignKey }

func (e *ForeignKeyViolationError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a unique or foreign key violation on the named constraint.
func IsConstraint(err error, constraint string) bool {
	var unique *UniqueViolationError
	if errors.As(err, &unique) {
		return unique.Constraint == constraint
	}
	var fk *ForeignKeyViolationError
	if errors.As(err, &fk) {
		return fk.Constraint == constraint
	}
	return false
}

// translate converts Postgres integrity errors into store errors and leaves the rest alone.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return &UniqueViolationError{Constraint: pgErr.ConstraintName, Err: err}
	case "23503":
		return &ForeignKeyViolationError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}

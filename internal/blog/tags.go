package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"quill/api/internal/store"
)

// TagStore is the part of a store transaction that tag reconciliation needs.
type TagStore interface {
	FindTagByName(ctx context.Context, name string) (store.Tag, error)
	CreateTag(ctx context.Context, name string) (store.Tag, error)
}

// UniqueTagNames drops repeated names, keeping the first occurrence.
func UniqueTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ReconcileTags resolves every distinct name to a stored tag, creating the
// ones that do not exist yet. A concurrent creator winning the insert is
// resolved by reading its row back. Names are resolved in sorted order so
// concurrent transactions lock new tag rows in the same order.
func ReconcileTags(ctx context.Context, tags TagStore, names []string) ([]store.Tag, error) {
	unique := UniqueTagNames(names)
	sort.Strings(unique)
	out := make([]store.Tag, 0, len(unique))
	for _, name := range unique {
		tag, err := findOrCreateTag(ctx, tags, name)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

func findOrCreateTag(ctx context.Context, tags TagStore, name string) (store.Tag, error) {
	tag, err := tags.FindTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, fmt.Errorf("find tag %q: %w", name, err)
	}

	tag, err = tags.CreateTag(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return store.Tag{}, fmt.Errorf("create tag %q: %w", name, err)
	}

	tag, err = tags.FindTagByName(ctx, name)
	if err != nil {
		return store.Tag{}, fmt.Errorf("reload tag %q: %w", name, err)
	}
	return tag, nil
}

func TagIDs(tags []store.Tag) []int64 {
	ids := make([]int64, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

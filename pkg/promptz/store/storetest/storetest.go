// Package storetest holds the behavioral suite every promptz.Store backend
// must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) promptz.Store

// NewEntity builds a valid entity owned by owner.
func NewEntity(owner, name string) *promptz.Entity {
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &promptz.Entity{
		ID:          id,
		Slug:        promptz.Slugify(name, id),
		Owner:       owner,
		Name:        name,
		Description: "description of " + name,
		Content:     "content of " + name,
		Tags:        []string{"a", "b"},
		Scope:       promptz.ScopePublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Run exercises the store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()
	kind := promptz.PromptKind

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Create And Get")
		require.NoError(t, s.Create(ctx, kind, e))

		got, err := s.Get(ctx, kind, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, e.Slug, got.Slug)
		assert.Equal(t, e.Owner, got.Owner)
		assert.Equal(t, e.Name, got.Name)
		assert.Equal(t, e.Tags, got.Tags)
		assert.Equal(t, e.Scope, got.Scope)
		assert.True(t, e.CreatedAt.Equal(got.CreatedAt), "created at %v, got %v", e.CreatedAt, got.CreatedAt)
		assert.Zero(t, got.CopyCount)
	})

	t.Run("CreateEmptyTags", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "No Tags")
		e.Tags = []string{}
		require.NoError(t, s.Create(ctx, kind, e))

		got, err := s.Get(ctx, kind, e.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Tags)
		assert.Empty(t, got.Tags)
	})

	t.Run("CreateConflict", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "First")
		require.NoError(t, s.Create(ctx, kind, e))

		dup := NewEntity("user-2", "Second")
		dup.ID = e.ID
		err := s.Create(ctx, kind, dup)
		assert.True(t, errors.Is(err, promptz.ErrConflict), "got %v", err)

		got, err := s.Get(ctx, kind, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.Owner)
		assert.Equal(t, "First", got.Name)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, kind, uuid.NewString())
		assert.True(t, errors.Is(err, promptz.ErrNotFound), "got %v", err)
	})

	t.Run("KindsAreSeparate", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Prompt Only")
		require.NoError(t, s.Create(ctx, kind, e))

		_, err := s.Get(ctx, promptz.RuleKind, e.ID)
		assert.True(t, errors.Is(err, promptz.ErrNotFound), "got %v", err)
	})

	t.Run("UpdateByOwner", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Before")
		require.NoError(t, s.Create(ctx, kind, e))
		_, err := s.Increment(ctx, kind, e.ID, promptz.CounterCopy)
		require.NoError(t, err)

		patch := &promptz.Entity{
			ID:          e.ID,
			Slug:        promptz.Slugify("After", e.ID),
			Name:        "After",
			Description: "changed",
			Content:     "new content",
			HowTo:       "new howto",
			Tags:        []string{"c"},
			Scope:       promptz.ScopePrivate,
			SourceURL:   "https://example.com/after",
			UpdatedAt:   e.UpdatedAt.Add(time.Minute),
		}
		got, err := s.Update(ctx, kind, "user-1", patch)
		require.NoError(t, err)

		assert.Equal(t, "After", got.Name)
		assert.Equal(t, patch.Slug, got.Slug)
		assert.Equal(t, []string{"c"}, got.Tags)
		assert.Equal(t, promptz.ScopePrivate, got.Scope)
		assert.Equal(t, "new howto", got.HowTo)
		assert.Equal(t, "https://example.com/after", got.SourceURL)
		assert.Equal(t, "user-1", got.Owner)
		assert.Equal(t, int64(1), got.CopyCount)
		assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, patch.UpdatedAt.Equal(got.UpdatedAt))

		stored, err := s.Get(ctx, kind, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "After", stored.Name)
	})

	t.Run("UpdateByNonOwner", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Mine")
		require.NoError(t, s.Create(ctx, kind, e))

		patch := NewEntity("user-2", "Theirs")
		patch.ID = e.ID
		_, err := s.Update(ctx, kind, "user-2", patch)
		assert.True(t, errors.Is(err, promptz.ErrUnauthorized), "got %v", err)

		stored, err := s.Get(ctx, kind, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mine", stored.Name)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		patch := NewEntity("user-1", "Ghost")
		_, err := s.Update(ctx, kind, "user-1", patch)
		assert.True(t, errors.Is(err, promptz.ErrUnauthorized), "got %v", err)

		_, err = s.Get(ctx, kind, patch.ID)
		assert.True(t, errors.Is(err, promptz.ErrNotFound), "update must not upsert")
	})

	t.Run("DeleteByOwner", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Doomed")
		require.NoError(t, s.Create(ctx, kind, e))

		deleted, err := s.Delete(ctx, kind, e.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, e.ID, deleted.ID)
		assert.Equal(t, "Doomed", deleted.Name)

		_, err = s.Get(ctx, kind, e.ID)
		assert.True(t, errors.Is(err, promptz.ErrNotFound), "got %v", err)

		_, err = s.Delete(ctx, kind, e.ID, "user-1")
		assert.True(t, errors.Is(err, promptz.ErrUnauthorized), "got %v", err)
	})

	t.Run("DeleteByNonOwner", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Kept")
		require.NoError(t, s.Create(ctx, kind, e))

		_, err := s.Delete(ctx, kind, e.ID, "user-2")
		assert.True(t, errors.Is(err, promptz.ErrUnauthorized), "got %v", err)

		_, err = s.Get(ctx, kind, e.ID)
		assert.NoError(t, err)
	})

	t.Run("IncrementCounters", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Popular")
		require.NoError(t, s.Create(ctx, kind, e))

		got, err := s.Increment(ctx, kind, e.ID, promptz.CounterCopy)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.CopyCount)
		assert.Zero(t, got.DownloadCount)

		got, err = s.Increment(ctx, kind, e.ID, promptz.CounterDownload)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.CopyCount)
		assert.Equal(t, int64(1), got.DownloadCount)
		assert.Equal(t, "Popular", got.Name)
	})

	t.Run("IncrementMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Increment(ctx, kind, uuid.NewString(), promptz.CounterCopy)
		assert.True(t, errors.Is(err, promptz.ErrNotFound), "got %v", err)
	})

	t.Run("IncrementConcurrent", func(t *testing.T) {
		s := newStore(t)
		e := NewEntity("user-1", "Contended")
		require.NoError(t, s.Create(ctx, kind, e))

		const n = 20
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, err := s.Increment(ctx, kind, e.ID, promptz.CounterCopy)
				return err
			})
		}
		require.NoError(t, g.Wait())

		got, err := s.Get(ctx, kind, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.CopyCount)
	})
}

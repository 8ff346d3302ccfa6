package promptz_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	membus "github.com/cremich/promptz-sub001/pkg/promptz/bus/memory"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

// tickingClock advances one second on every reading.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	svc   promptz.Service
	store *memory.Store
	bus   *membus.Bus
}

func setupServiceTest(t *testing.T, opts ...promptz.Option) fixture {
	t.Helper()
	store := memory.New()
	bus := membus.New(0)
	clock := newTickingClock()

	options := append([]promptz.Option{
		promptz.WithStore(store),
		promptz.WithPublisher(bus),
		promptz.WithClock(clock.Now),
	}, opts...)

	svc, err := promptz.New(options...)
	require.NoError(t, err)
	return fixture{svc: svc, store: store, bus: bus}
}

func gitHelper() promptz.SaveRequest {
	return promptz.SaveRequest{
		Name:        "Git Helper",
		Description: "Writes commit messages",
		Content:     "Summarize the staged diff as a conventional commit.",
		HowTo:       "Paste the diff after the prompt.",
		Tags:        []string{"git", "cli"},
		Scope:       promptz.ScopePublic,
	}
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []promptz.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []promptz.Option{},
			expectError: true,
		},
		{
			name: "with store should succeed",
			options: []promptz.Option{
				promptz.WithStore(memory.New()),
			},
			expectError: false,
		},
		{
			name: "with store and publisher should succeed",
			options: []promptz.Option{
				promptz.WithStore(memory.New()),
				promptz.WithPublisher(promptz.NewNoopPublisher()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := promptz.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestService_CreatePrompt(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)

	assert.NotEmpty(t, prompt.ID)
	assert.True(t, strings.HasPrefix(prompt.Slug, "git-helper-"), prompt.Slug)
	segment, _, _ := strings.Cut(prompt.ID, "-")
	assert.Equal(t, "git-helper-"+segment, prompt.Slug)
	assert.Equal(t, "user-1", prompt.Owner)
	assert.Zero(t, prompt.CopyCount)
	assert.Zero(t, prompt.DownloadCount)
	assert.False(t, prompt.CreatedAt.IsZero())
	assert.Equal(t, prompt.CreatedAt, prompt.UpdatedAt)
	assert.Equal(t, []string{"git", "cli"}, prompt.Tags)

	events := f.bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "prompt.saved", events[0].DetailType)
	assert.Equal(t, promptz.DefaultEventSource, events[0].Source)
	assert.Empty(t, cmp.Diff(prompt, events[0].Detail))

	stored, err := f.svc.Get(ctx, promptz.PromptKind, prompt.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(prompt, stored))
}

func TestService_CreateDefaults(t *testing.T) {
	f := setupServiceTest(t)

	rule, err := f.svc.Save(context.Background(), promptz.RuleKind, "user-1", promptz.SaveRequest{
		Name:  "Go style",
		HowTo: "ignored for rules",
	})
	require.NoError(t, err)

	assert.Equal(t, promptz.ScopePrivate, rule.Scope)
	assert.NotNil(t, rule.Tags)
	assert.Empty(t, rule.Tags)
	assert.Empty(t, rule.HowTo)

	events := f.bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "rule.saved", events[0].DetailType)
}

func TestService_UpdateByOwner(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	created, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	_, err = f.svc.Copy(ctx, promptz.PromptKind, created.ID)
	require.NoError(t, err)

	req := gitHelper()
	req.ID = created.ID
	req.Name = "Git Helper Pro"
	req.Tags = []string{"git"}
	updated, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", req)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.NotEqual(t, created.Slug, updated.Slug)
	assert.True(t, strings.HasPrefix(updated.Slug, "git-helper-pro-"), updated.Slug)
	assert.Equal(t, "user-1", updated.Owner)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, int64(1), updated.CopyCount)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, []string{"git"}, updated.Tags)

	events := f.bus.Events()
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, "prompt.saved", last.DetailType)
	assert.Empty(t, cmp.Diff(updated, last.Detail))
}

func TestService_UpdateByNonOwner(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	created, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	f.bus.Reset()

	req := gitHelper()
	req.ID = created.ID
	req.Name = "Hijacked"
	_, err = f.svc.Save(ctx, promptz.PromptKind, "user-2", req)
	require.Error(t, err)
	assert.ErrorIs(t, err, promptz.ErrUnauthorized)

	var mutErr *promptz.MutationError
	require.True(t, errors.As(err, &mutErr))
	assert.Equal(t, "update", mutErr.Op)
	assert.Equal(t, created.ID, mutErr.ID)

	stored, err := f.svc.Get(ctx, promptz.PromptKind, created.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(created, stored))
	assert.Empty(t, f.bus.Events())
}

func TestService_UpdateMissingIsUnauthorized(t *testing.T) {
	f := setupServiceTest(t)

	req := gitHelper()
	req.ID = "does-not-exist"
	_, err := f.svc.Save(context.Background(), promptz.PromptKind, "user-1", req)
	assert.ErrorIs(t, err, promptz.ErrUnauthorized)
	assert.NotErrorIs(t, err, promptz.ErrNotFound)
	assert.Empty(t, f.bus.Events())
}

func TestService_AnonymousMutationsRejected(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, promptz.PromptKind, "", gitHelper())
	assert.ErrorIs(t, err, promptz.ErrUnauthorized)

	_, err = f.svc.Delete(ctx, promptz.PromptKind, "", "some-id")
	assert.ErrorIs(t, err, promptz.ErrUnauthorized)

	assert.Zero(t, f.store.Len(promptz.PromptKind))
	assert.Empty(t, f.bus.Events())
}

func TestService_CreateRetriesOnConflict(t *testing.T) {
	ids := []string{"dup-1", "dup-1", "fresh-2"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	f := setupServiceTest(t, promptz.WithIDGenerator(next))
	ctx := context.Background()

	first, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	assert.Equal(t, "dup-1", first.ID)

	second, err := f.svc.Save(ctx, promptz.PromptKind, "user-2", gitHelper())
	require.NoError(t, err)
	assert.Equal(t, "fresh-2", second.ID)
	assert.Equal(t, "git-helper-fresh", second.Slug)

	first, err = f.svc.Get(ctx, promptz.PromptKind, "dup-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", first.Owner)
	assert.Len(t, f.bus.Events(), 2)
}

func TestService_CreateConflictExhausted(t *testing.T) {
	f := setupServiceTest(t,
		promptz.WithIDGenerator(func() string { return "same-id" }),
		promptz.WithMaxCreateAttempts(2),
	)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	f.bus.Reset()

	_, err = f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	assert.ErrorIs(t, err, promptz.ErrConflict)
	assert.Empty(t, f.bus.Events())
	assert.Equal(t, 1, f.store.Len(promptz.PromptKind))
}

func TestService_ConcurrentCopies(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupServiceTest(t)
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	f.bus.Reset()

	const n = 64
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.svc.Copy(ctx, promptz.PromptKind, prompt.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	stored, err := f.svc.Get(ctx, promptz.PromptKind, prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stored.CopyCount)
	assert.Zero(t, stored.DownloadCount)

	events := f.bus.Events()
	require.Len(t, events, n)
	seen := make(map[int64]bool)
	for _, e := range events {
		assert.Equal(t, "prompt.copied", e.DetailType)
		seen[e.Detail.CopyCount] = true
	}
	assert.Len(t, seen, n, "every increment observes a distinct counter value")
}

func TestService_CountersAreMonotonic(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)

	var lastCopy, lastDownload int64
	for i := 0; i < 10; i++ {
		var e *promptz.Entity
		if i%3 == 0 {
			e, err = f.svc.Download(ctx, promptz.PromptKind, prompt.ID)
		} else {
			e, err = f.svc.Copy(ctx, promptz.PromptKind, prompt.ID)
		}
		require.NoError(t, err)
		assert.GreaterOrEqual(t, e.CopyCount, lastCopy)
		assert.GreaterOrEqual(t, e.DownloadCount, lastDownload)
		lastCopy, lastDownload = e.CopyCount, e.DownloadCount
	}
	assert.Equal(t, int64(6), lastCopy)
	assert.Equal(t, int64(4), lastDownload)

	events := f.bus.Events()
	require.Len(t, events, 11)
	assert.Equal(t, "prompt.downloaded", events[1].DetailType)
	assert.Equal(t, "prompt.copied", events[2].DetailType)
}

func TestService_CounterOnMissingEntity(t *testing.T) {
	f := setupServiceTest(t)

	_, err := f.svc.Copy(context.Background(), promptz.PromptKind, "missing")
	assert.ErrorIs(t, err, promptz.ErrNotFound)

	_, err = f.svc.Download(context.Background(), promptz.RuleKind, "missing")
	assert.ErrorIs(t, err, promptz.ErrNotFound)

	assert.Empty(t, f.bus.Events())
}

func TestService_DeleteByOwner(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	copied, err := f.svc.Copy(ctx, promptz.PromptKind, prompt.ID)
	require.NoError(t, err)
	f.bus.Reset()

	deleted, err := f.svc.Delete(ctx, promptz.PromptKind, "user-1", prompt.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(copied, deleted))

	_, err = f.svc.Get(ctx, promptz.PromptKind, prompt.ID)
	assert.ErrorIs(t, err, promptz.ErrNotFound)

	events := f.bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "prompt.deleted", events[0].DetailType)
	assert.Empty(t, cmp.Diff(deleted, events[0].Detail))
}

func TestService_DeleteByNonOwner(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	f.bus.Reset()

	_, err = f.svc.Delete(ctx, promptz.PromptKind, "user-2", prompt.ID)
	assert.ErrorIs(t, err, promptz.ErrUnauthorized)

	_, err = f.svc.Get(ctx, promptz.PromptKind, prompt.ID)
	assert.NoError(t, err)
	assert.Empty(t, f.bus.Events())
}

func TestService_KindsAreIsolated(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, promptz.RuleKind, prompt.ID)
	assert.ErrorIs(t, err, promptz.ErrNotFound)

	_, err = f.svc.Copy(ctx, promptz.AgentKind, prompt.ID)
	assert.ErrorIs(t, err, promptz.ErrNotFound)
}

func TestService_PublishFailureIsSwallowed(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	reg := prometheus.NewRegistry()
	metrics, err := promptz.NewMetrics(reg)
	require.NoError(t, err)

	failing := promptz.PublisherFunc(func(ctx context.Context, e *promptz.Event) error {
		return errors.New("bus unavailable")
	})

	store := memory.New()
	svc, err := promptz.New(
		promptz.WithStore(store),
		promptz.WithPublisher(failing),
		promptz.WithLogger(logger),
		promptz.WithMetrics(metrics),
	)
	require.NoError(t, err)
	ctx := context.Background()

	prompt, err := svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	require.NotNil(t, prompt)

	stored, err := svc.Get(ctx, promptz.PromptKind, prompt.ID)
	require.NoError(t, err, "store write is not rolled back")
	assert.Equal(t, prompt.ID, stored.ID)

	assert.Contains(t, logs.String(), "Failed to publish event")
	assert.Contains(t, logs.String(), "bus unavailable")
	assert.Contains(t, logs.String(), prompt.ID)

	assert.Equal(t, 1.0, counterValue(t, reg, "promptz_event_publish_failures_total"))
	assert.Zero(t, counterValue(t, reg, "promptz_events_published_total"))
}

func TestService_PublishUsesDetachedContext(t *testing.T) {
	var gotErr error
	publisher := promptz.PublisherFunc(func(ctx context.Context, e *promptz.Event) error {
		gotErr = ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	svc, err := promptz.New(
		promptz.WithStore(memory.New()),
		promptz.WithPublisher(publisher),
		promptz.WithPublishTimeout(time.Second),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	prompt, err := svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	cancel()

	_, err = svc.Copy(ctx, promptz.PromptKind, prompt.ID)
	// the memory store ignores cancellation, so the copy commits
	require.NoError(t, err)
	assert.NoError(t, gotErr)
}

func TestService_MutationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := promptz.NewMetrics(reg)
	require.NoError(t, err)

	f := setupServiceTest(t, promptz.WithMetrics(metrics))
	ctx := context.Background()

	prompt, err := f.svc.Save(ctx, promptz.PromptKind, "user-1", gitHelper())
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, promptz.PromptKind, "user-2", prompt.ID)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "promptz_mutations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1.0, counterValue(t, reg, "promptz_events_published_total"))
}

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/docstore"
	"pulse/internal/services"
	"pulse/internal/triggers"
)

type fakePublisher struct {
	events []triggers.Event
	closed bool
}

func (p *fakePublisher) Publish(ctx context.Context, e triggers.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func testRoot(t *testing.T) (*RootOptions, *docstore.Memory, *fakePublisher) {
	t.Helper()
	store := docstore.NewMemory()
	pub := &fakePublisher{}
	opts := &RootOptions{
		OpenServices: func(ctx context.Context) (*services.Services, func() error, error) {
			return services.New(store, services.Options{FeedBackfillSize: 5}), func() error { return nil }, nil
		},
		OpenPublisher: func(ctx context.Context) (EventPublisher, error) { return pub, nil },
	}
	return opts, store, pub
}

func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommandWith(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pulsectl", cmd.Use)

	for _, name := range []string{"recompute", "sweep", "backfill", "emit"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	opts, _, _ := testRoot(t)
	_, err := run(t, opts, "sweep", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestRecompute(t *testing.T) {
	opts, store, _ := testRoot(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "posts/p1", docstore.Data{"timestamp": time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}, false))

	out, err := run(t, opts, "recompute", "posts")
	require.NoError(t, err)
	assert.Equal(t, "recompute-each-post-score succeeded: 1 processed\n", out)

	snap, err := store.Get(ctx, "posts/p1")
	require.NoError(t, err)
	assert.Contains(t, snap.Data, "score")

	out, err = run(t, opts, "recompute", "topics", "--format", "json")
	require.NoError(t, err)
	var decoded jobOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "recompute-each-topic-score succeeded: 0 processed", decoded.Message)
	assert.False(t, decoded.Failed)

	_, err = run(t, opts, "recompute", "comments")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	opts, store, _ := testRoot(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "users/u1", docstore.Data{"active": true}, false))
	require.NoError(t, store.Set(ctx, "users/u1/feed/p1", docstore.Data{"content_id": "p1"}, false))
	require.NoError(t, store.Set(ctx, "sessions/u1", docstore.Data{"last_seen": time.Now().Add(-30 * 24 * time.Hour)}, false))

	out, err := run(t, opts, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "sweep-inactive-users succeeded")

	snap, err := store.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, false, snap.Data["active"])
}

func TestBackfill(t *testing.T) {
	opts, store, _ := testRoot(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "posts/p1", docstore.Data{"title": "a", "score": 0.5}, false))
	require.NoError(t, store.Set(ctx, "posts/p2", docstore.Data{"title": "b", "score": 0.7}, false))

	out, err := run(t, opts, "backfill", "u1")
	require.NoError(t, err)
	assert.Equal(t, "backfilled 2 feed entries for user u1\n", out)

	n, err := store.Count(ctx, docstore.Collection("users/u1/feed"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEmit(t *testing.T) {
	opts, _, pub := testRoot(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"e1","kind":"create","path":"posts/p1","after":{"title":"a"}}`), 0o644))

	out, err := run(t, opts, "emit", path)
	require.NoError(t, err)
	assert.Equal(t, "published event e1 (create)\n", out)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "posts/p1", pub.events[0].Path)
	assert.False(t, pub.events[0].Time.IsZero())
	assert.True(t, pub.closed)

	_, err = run(t, opts, "emit", path, "--new-id")
	require.NoError(t, err)
	require.Len(t, pub.events, 2)
	assert.NotEqual(t, "e1", pub.events[1].ID)
}

func TestEmitRejectsBadEvents(t *testing.T) {
	opts, _, pub := testRoot(t)
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"create","path":"posts"}`), 0o644))

	_, err := run(t, opts, "emit", path)
	assert.True(t, errors.Is(err, triggers.ErrInvalidEvent))
	assert.Empty(t, pub.events)

	_, err = run(t, opts, "emit", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

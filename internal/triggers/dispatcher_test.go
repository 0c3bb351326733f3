package triggers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/models"
)

type calls struct {
	mu   sync.Mutex
	seen []string
}

func (c *calls) record(name string) HandlerFunc {
	return func(ctx context.Context, e *Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.seen = append(c.seen, name+":"+e.Param("postId")+e.Param("userId"))
		return nil
	}
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func TestDispatchRoutesByPathAndKind(t *testing.T) {
	var c calls
	d := NewDispatcher(nil)
	d.Handle("posts/{postId}", "created", c.record("created"), KindCreate)
	d.Handle("posts/{postId}", "any", c.record("any"))
	d.Handle("posts/{postId}/ratings/{userId}", "rating", c.record("rating"))

	n, err := d.Dispatch(context.Background(), Event{ID: "1", Kind: KindCreate, Path: "posts/p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.Dispatch(context.Background(), Event{ID: "2", Kind: KindUpdate, Path: "posts/p2/ratings/u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = d.Dispatch(context.Background(), Event{ID: "3", Kind: KindDelete, Path: "topics/t1"})
	require.NoError(t, err)
	assert.Zero(t, n)

	d.Wait()
	assert.ElementsMatch(t, []string{"created:p1", "any:p1", "rating:p2u1"}, c.list())
}

func TestDispatchRejectsInvalidEvents(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Dispatch(context.Background(), Event{Kind: KindCreate, Path: "posts/p1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDispatchSwallowsHandlerFailures(t *testing.T) {
	var c calls
	d := NewDispatcher(nil)
	d.Handle("posts/{postId}", "fails", func(context.Context, *Event) error { return errors.New("boom") })
	d.Handle("posts/{postId}", "panics", func(context.Context, *Event) error { panic("bad") })
	d.Handle("posts/{postId}", "ok", c.record("ok"))

	n, err := d.Dispatch(context.Background(), Event{ID: "1", Kind: KindUpdate, Path: "posts/p1"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	d.Wait()
	assert.Equal(t, []string{"ok:p1"}, c.list())
}

func TestDispatchDetachesFromCallerCancellation(t *testing.T) {
	d := NewDispatcher(nil)
	var handlerErr error
	d.Handle("posts/{postId}", "ctx", func(ctx context.Context, e *Event) error {
		handlerErr = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	_, err := d.Dispatch(ctx, Event{ID: "1", Kind: KindCreate, Path: "posts/p1"})
	require.NoError(t, err)
	cancel()
	d.Wait()
	assert.NoError(t, handlerErr)
}

func TestDispatchAccountEvents(t *testing.T) {
	var c calls
	d := NewDispatcher(nil)
	d.HandleAccount(KindAccountCreate, "init", func(ctx context.Context, e *Event) error {
		return c.record("init:"+e.Account.UID)(ctx, e)
	})
	assert.Panics(t, func() { d.HandleAccount(KindCreate, "bad", c.record("bad")) })

	n, err := d.Dispatch(context.Background(), Event{ID: "1", Kind: KindAccountCreate, Account: &models.Account{UID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = d.Dispatch(context.Background(), Event{ID: "2", Kind: KindAccountDelete, Account: &models.Account{UID: "u1"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	d.Wait()
	assert.Equal(t, []string{"init:u1:"}, c.list())
}

func TestDispatchDropsDuplicates(t *testing.T) {
	var c calls
	dedupe, err := NewLRUDeduper(16, time.Minute)
	require.NoError(t, err)
	d := NewDispatcher(dedupe)
	d.Handle("posts/{postId}", "any", c.record("any"))

	e := Event{ID: "same", Kind: KindUpdate, Path: "posts/p1"}
	n, err := d.Dispatch(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = d.Dispatch(context.Background(), e)
	require.NoError(t, err)
	assert.Zero(t, n)
	d.Wait()
	assert.Len(t, c.list(), 1)
}

func TestDispatchWhenDedupeIsDown(t *testing.T) {
	var c calls
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	d := NewDispatcher(NewRedisDeduper(client, time.Minute))
	d.Handle("posts/{postId}", "any", c.record("any"))

	n, err := d.Dispatch(context.Background(), Event{ID: "1", Kind: KindUpdate, Path: "posts/p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	d.Wait()
}

func TestLRUDeduper(t *testing.T) {
	_, err := NewLRUDeduper(0, time.Minute)
	assert.Error(t, err)

	dedupe, err := NewLRUDeduper(2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	seen, _ := dedupe.Seen(ctx, "a")
	assert.False(t, seen)
	seen, _ = dedupe.Seen(ctx, "a")
	assert.True(t, seen)
}

func TestConsumerHandle(t *testing.T) {
	var c calls
	d := NewDispatcher(nil)
	d.Handle("posts/{postId}", "any", c.record("any"))
	consumer := NewAMQPConsumer("amqp://unused", "events", d)

	require.NoError(t, consumer.handle(context.Background(), []byte(`{"id":"1","kind":"create","path":"posts/p9"}`)))
	assert.ErrorIs(t, consumer.handle(context.Background(), []byte(`{"kind":"create"}`)), ErrInvalidEvent)
	d.Wait()
	assert.Equal(t, []string{"any:p9"}, c.list())
}

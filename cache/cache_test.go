package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_GetSet(t *testing.T) {
	c := New[string](0, nil)
	assert.Equal(t, DefaultTTL, c.TTL())

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v", "")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[int](time.Hour, clock.Now)

	c.Set("k", 1, "")

	clock.Advance(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok, "still inside the window")

	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired at exactly one TTL")
	assert.Zero(t, c.Len(), "expired entries are dropped on read")
}

func TestCache_InvalidateTag(t *testing.T) {
	c := New[int](time.Hour, nil)
	c.Set("list", 1, "", "posts", "notion")
	c.Set("body", 2, "/posts/a", "posts")
	c.Set("other", 3, "")

	assert.Equal(t, 1, c.InvalidateTag("notion"))
	assert.Equal(t, 1, c.InvalidateTag("posts"), "already stale entries are not counted twice")

	_, ok := c.Get("list")
	assert.False(t, ok)
	_, ok = c.Get("body")
	assert.False(t, ok)
	_, ok = c.Get("other")
	assert.True(t, ok)
}

func TestCache_InvalidatePath(t *testing.T) {
	c := New[int](time.Hour, nil)
	c.Set("a", 1, "/posts/a")
	c.Set("b", 2, "/posts/b")

	assert.Equal(t, 1, c.InvalidatePath("/posts/a"))
	assert.Zero(t, c.InvalidatePath(""))

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCache_SetAtDropsFillsOlderThanInvalidation(t *testing.T) {
	c := New[int](time.Hour, nil)

	gen := c.Generation()
	assert.Zero(t, c.InvalidateTag("posts"), "nothing cached yet")
	assert.False(t, c.SetAt(gen, "list", 1, "", "posts"))
	_, ok := c.Get("list")
	assert.False(t, ok, "a fill that started before the invalidation is dropped")

	gen = c.Generation()
	assert.True(t, c.SetAt(gen, "list", 2, "", "posts"))
	v, ok := c.Get("list")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	gen = c.Generation()
	c.InvalidatePath("/posts/a")
	assert.False(t, c.SetAt(gen, "a", 3, "/posts/a"))
}

func TestRegistry_Invalidate(t *testing.T) {
	lists := New[[]string](time.Hour, nil)
	bodies := New[string](time.Hour, nil)
	r := NewRegistry()
	r.Register(lists)
	r.Register(bodies)

	lists.Set("posts:published", []string{"a"}, "", "posts")
	bodies.Set("a", "body", "/posts/a", "posts")
	bodies.Set("b", "body", "/posts/b")

	n := r.Invalidate([]string{"posts"}, []string{"/posts/b"})
	assert.Equal(t, 3, n)
	assert.Zero(t, r.Invalidate([]string{"posts"}, nil))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("k", i, "", "t")
			c.Get("k")
			c.InvalidateTag("t")
		}(i)
	}
	wg.Wait()
}

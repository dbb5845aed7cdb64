package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBoundsInflight(t *testing.T) {
	g := New(Options{MaxInflight: 2})

	r1, ok := g.Allow("gemini", "m")
	assert.True(t, ok)
	r2, ok := g.Allow("gemini", "m")
	assert.True(t, ok)
	_, ok = g.Allow("gemini", "m")
	assert.False(t, ok)

	// other models have their own slots
	_, ok = g.Allow("gemini", "other")
	assert.True(t, ok)

	r1()
	_, ok = g.Allow("gemini", "m")
	assert.True(t, ok)
	r2()
}

func TestMemoryBreakerBackoff(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewMemoryBreaker(10*time.Second, 30*time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	assert.False(t, b.IsOpen(ctx, "p", "m"))
	assert.Equal(t, 10*time.Second, b.Open(ctx, "p", "m"))
	assert.True(t, b.IsOpen(ctx, "P", "M"))
	assert.Equal(t, 20*time.Second, b.Open(ctx, "p", "m"))
	assert.Equal(t, 30*time.Second, b.Open(ctx, "p", "m"))
	assert.Equal(t, 30*time.Second, b.Open(ctx, "p", "m"))

	now = now.Add(31 * time.Second)
	assert.False(t, b.IsOpen(ctx, "p", "m"))

	b.Open(ctx, "p", "m")
	b.Close(ctx, "p", "m")
	assert.False(t, b.IsOpen(ctx, "p", "m"))
}

func TestGuardReport(t *testing.T) {
	g := New(Options{})
	ctx := context.Background()
	g.Report(ctx, "openai", "m", true)
	assert.True(t, g.IsOpen(ctx, "openai", "m"))
	g.Report(ctx, "openai", "m", false)
	assert.False(t, g.IsOpen(ctx, "openai", "m"))
}

package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/llamalith/llamalith/internal/llm"
	"github.com/llamalith/llamalith/internal/llm/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoad_LoadsOncePerKey(t *testing.T) {
	rt := mock.NewRuntime()
	c := llm.NewModelCache(rt, 0)
	ctx := context.Background()

	first, err := c.GetOrLoad(ctx, "mistral")
	require.NoError(t, err)

	second, err := c.GetOrLoad(ctx, "mistral")
	require.NoError(t, err)

	// Identical handle instance, loader invoked exactly once.
	assert.Same(t, first, second)
	assert.Equal(t, 1, rt.LoadCalls("mistral"))

	_, err = c.GetOrLoad(ctx, "mythomax")
	require.NoError(t, err)
	assert.Equal(t, 1, rt.LoadCalls("mythomax"))
	assert.Equal(t, 2, c.Resident())
}

func TestGetOrLoad_LoadErrorNotCached(t *testing.T) {
	loadErr := errors.New("runtime down")
	rt := mock.NewFailingRuntime(loadErr)
	c := llm.NewModelCache(rt, 0)
	ctx := context.Background()

	_, err := c.GetOrLoad(ctx, "mistral")
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 0, c.Resident())

	// A failed load is retried on the next request.
	_, err = c.GetOrLoad(ctx, "mistral")
	assert.Error(t, err)
	assert.Equal(t, 2, rt.LoadCalls("mistral"))
}

func TestGetOrLoad_EvictsLeastRecentlyUsed(t *testing.T) {
	rt := mock.NewRuntime()
	c := llm.NewModelCache(rt, 2)
	ctx := context.Background()

	a, err := c.GetOrLoad(ctx, "a")
	require.NoError(t, err)
	_, err = c.GetOrLoad(ctx, "b")
	require.NoError(t, err)

	// Touch "a" so "b" is the eviction candidate.
	_, err = c.GetOrLoad(ctx, "a")
	require.NoError(t, err)

	_, err = c.GetOrLoad(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Resident())

	// "a" survived; asking for it again must not reload.
	again, err := c.GetOrLoad(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 1, rt.LoadCalls("a"))

	// "b" was evicted and closed; a new request reloads it.
	_, err = c.GetOrLoad(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, rt.LoadCalls("b"))
}

func TestClose_ReleasesHandles(t *testing.T) {
	rt := mock.NewRuntime()
	c := llm.NewModelCache(rt, 0)

	m, err := c.GetOrLoad(context.Background(), "mistral")
	require.NoError(t, err)

	c.Close()
	assert.Equal(t, 0, c.Resident())
	assert.True(t, m.(*mock.Model).Closed())
}

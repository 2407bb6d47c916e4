package domain_test

import (
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_SetAndSnapshot(t *testing.T) {
	c := domain.NewContext(false)
	c.Set("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	// Snapshots are copies.
	snap := c.Snapshot()
	snap["k"] = "mutated"
	v, _ = c.Get("k")
	assert.Equal(t, "v", v)
}

func TestContext_RollbackHeads(t *testing.T) {
	c := domain.NewContext(false)
	c.Set("existing", "before")
	c.BeginCycle()

	require.NoError(t, c.SetFromHead(1, "existing", "after"))
	require.NoError(t, c.SetFromHead(1, "fresh", "value"))
	require.NoError(t, c.SetFromHead(2, "kept", "winner"))

	c.RollbackHeads(map[uint64]bool{1: true})

	v, _ := c.Get("existing")
	assert.Equal(t, "before", v, "overwrite reverts to the prior value")
	_, ok := c.Get("fresh")
	assert.False(t, ok, "a new key from the rolled-back head disappears")
	v, _ = c.Get("kept")
	assert.Equal(t, "winner", v, "other heads' writes survive")
}

func TestContext_RollbackRevertsNewestFirst(t *testing.T) {
	c := domain.NewContext(false)
	c.BeginCycle()
	require.NoError(t, c.SetFromHead(1, "k", "first"))
	require.NoError(t, c.SetFromHead(1, "k", "second"))

	c.RollbackHeads(map[uint64]bool{1: true})
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestContext_WriteRaceDetection(t *testing.T) {
	c := domain.NewContext(true)
	c.BeginCycle()

	require.NoError(t, c.SetFromHead(1, "shared", "a"))
	err := c.SetFromHead(2, "shared", "b")

	var race *domain.WriteRaceError
	require.ErrorAs(t, err, &race)
	assert.Equal(t, "shared", race.Key)
	assert.Equal(t, uint64(1), race.FirstHead)
	assert.Equal(t, uint64(2), race.SecondHead)

	// The write applies regardless.
	v, _ := c.Get("shared")
	assert.Equal(t, "b", v)

	// Same head rewriting its own key is not a race.
	assert.NoError(t, c.SetFromHead(2, "shared", "c"))

	// A new cycle resets the tracking.
	c.BeginCycle()
	assert.NoError(t, c.SetFromHead(3, "shared", "d"))
}

func TestContext_NoRaceDetectionOutsideDebug(t *testing.T) {
	c := domain.NewContext(false)
	c.BeginCycle()
	require.NoError(t, c.SetFromHead(1, "shared", "a"))
	assert.NoError(t, c.SetFromHead(2, "shared", "b"))
}

package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract verifies that a StateStore implementation
// adheres to the interface contract. Adapter test suites call it with
// their concrete store.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	newSnap := func(id string) *domain.SessionSnapshot {
		return &domain.SessionSnapshot{
			SessionID: id,
			Context:   map[string]any{"foo": "bar", "count": 42},
			Instances: []domain.InstanceSnapshot{
				{
					UID:    "i-1",
					FlowID: "greet user",
					Status: domain.StatusBlocked,
					Loop:   domain.DefaultLoop,
					Locals: map[string]any{"name": "ada"},
					Heads:  []domain.HeadSnapshot{{ID: 1, PC: 3, Scores: []float64{2.0}}},
				},
			},
			TakenAt: time.Now().UTC(),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, sessionID, newSnap(sessionID))
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		assert.Equal(t, "bar", loaded.Context["foo"])
		// JSON persistence may widen int to float64; only presence is
		// part of the contract.
		assert.NotNil(t, loaded.Context["count"])
		require.Len(t, loaded.Instances, 1)
		assert.Equal(t, "greet user", loaded.Instances[0].FlowID)
		require.Len(t, loaded.Instances[0].Heads, 1)
		assert.Equal(t, 3, loaded.Instances[0].Heads[0].PC)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, newSnap(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, newSnap(id1))
		_ = store.Save(ctx, id2, newSnap(id2))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

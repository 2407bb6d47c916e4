package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sampleSnapshot(id string) *domain.SessionSnapshot {
	return &domain.SessionSnapshot{
		SessionID: id,
		Context:   map[string]any{"secret": "my-secret-sauce"},
		Instances: []domain.InstanceSnapshot{{
			UID:    "greeter#1",
			FlowID: "greeter",
			Locals: map[string]any{"utt": "hello"},
		}},
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: generateKey(t),
	})(backend)

	require.NoError(t, secure.Save(ctx, "s1", sampleSnapshot("s1")))

	// The backend only ever sees the opaque envelope.
	stored, err := backend.Load(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, stored.Context, "secret")
	assert.Contains(t, stored.Context, "__encrypted__")
	assert.Empty(t, stored.Instances)

	loaded, err := secure.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Context["secret"])
	require.Len(t, loaded.Instances, 1)
	assert.Equal(t, "hello", loaded.Instances[0].Locals["utt"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: oldKey,
	})(backend)
	require.NoError(t, oldStore.Save(ctx, "s1", sampleSnapshot("s1")))

	// The rotated store decrypts old data via the fallback key.
	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(backend)
	loaded, err := rotated.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Context["secret"])

	// Re-saving re-encrypts under the new key; the old store can no
	// longer read it.
	require.NoError(t, rotated.Save(ctx, "s1", loaded))
	_, err = oldStore.Load(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestEncryptionMiddleware_RejectsPlainSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.Save(ctx, "s1", sampleSnapshot("s1")))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: generateKey(t),
	})(backend)
	_, err := secure.Load(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted envelope")
}

func TestEncryptionMiddleware_InvalidKeyPanics(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}

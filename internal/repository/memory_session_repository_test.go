package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerit/auth-service/internal/models"
)

func TestMemorySessionRepositoryLifecycle(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := &models.Session{UserID: "u1", Email: "user@example.com", SessionID: "s1"}
	require.NoError(t, repo.Create(ctx, session, time.Hour))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	// Get returns a copy; mutating it does not touch the stored record.
	got.Email = "changed@example.com"
	again, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", again.Email)

	require.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionMiss)

	// Deleting again stays a no-op.
	require.NoError(t, repo.Delete(ctx, "s1"))
}

func TestMemorySessionRepositoryExpiry(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	current := time.Now().UTC()
	repo.now = func() time.Time { return current }

	require.NoError(t, repo.Create(ctx, &models.Session{UserID: "u1", SessionID: "s1"}, time.Hour))

	current = current.Add(30 * time.Minute)
	_, err := repo.Get(ctx, "s1")
	require.NoError(t, err)

	// A TTL-refreshing update slides the window forward.
	require.NoError(t, repo.Update(ctx, &models.Session{UserID: "u1", SessionID: "s1"}, time.Hour))
	current = current.Add(45 * time.Minute)
	_, err = repo.Get(ctx, "s1")
	require.NoError(t, err)

	current = current.Add(time.Hour)
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionMiss)
}

func TestMemorySessionRepositoryDeleteByUser(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Session{UserID: "u1", SessionID: "s1"}, time.Hour))
	require.NoError(t, repo.Create(ctx, &models.Session{UserID: "u1", SessionID: "s2"}, time.Hour))
	require.NoError(t, repo.Create(ctx, &models.Session{UserID: "u2", SessionID: "s3"}, time.Hour))

	require.NoError(t, repo.DeleteByUser(ctx, "u1"))

	_, err := repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionMiss)
	_, err = repo.Get(ctx, "s2")
	assert.ErrorIs(t, err, ErrSessionMiss)
	_, err = repo.Get(ctx, "s3")
	assert.NoError(t, err)
}

func TestMemorySessionRepositorySweep(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	current := time.Now().UTC()
	repo.now = func() time.Time { return current }

	require.NoError(t, repo.Create(ctx, &models.Session{UserID: "u1", SessionID: "live"}, time.Hour))
	require.NoError(t, repo.Create(ctx, &models.Session{UserID: "u1", SessionID: "dead"}, time.Minute))

	current = current.Add(10 * time.Minute)
	removed := repo.Sweep()
	assert.Equal(t, 1, removed)

	_, err := repo.Get(ctx, "live")
	assert.NoError(t, err)
}

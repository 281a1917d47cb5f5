package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerit/auth-service/internal/models"
)

func TestTokenRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))
	token := &models.RefreshToken{UserID: "u1", Token: "opaque", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	assert.NotEmpty(t, token.ID)
	assert.False(t, token.CreatedAt.IsZero())

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "revoked", "revoked_at", "last_used_at", "ip_address", "user_agent", "created_at"}).
		AddRow(token.ID, "u1", "opaque", token.ExpiresAt, false, nil, nil, "", "", token.CreatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token, expires_at, revoked, revoked_at, last_used_at, ip_address, user_agent, created_at FROM refresh_tokens WHERE token = $1 LIMIT 1")).
		WithArgs("opaque").
		WillReturnRows(rows)
	got, err := repo.FindRefreshToken(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, got.Revoked)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE")).
		WithArgs(token.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), token.ID, time.Now().UTC()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindRefreshTokenMiss(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindRefreshToken(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenRepositoryConsumeMagicLinkToken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	usedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE magic_link_tokens SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE")).
		WithArgs("m1", usedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	consumed, err := repo.ConsumeMagicLinkToken(context.Background(), "m1", usedAt)
	require.NoError(t, err)
	assert.True(t, consumed)

	// Already-consumed rows update nothing; the caller must treat that as
	// a lost race, not a success.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE magic_link_tokens SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE")).
		WithArgs("m1", usedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	consumed, err = repo.ConsumeMagicLinkToken(context.Background(), "m1", usedAt)
	require.NoError(t, err)
	assert.False(t, consumed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryCleanupQueries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked = TRUE")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := repo.DeleteStaleRefreshTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM magic_link_tokens WHERE expires_at < $1 OR used = TRUE")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.DeleteExpiredMagicLinkTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevokeUserRefreshTokens(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

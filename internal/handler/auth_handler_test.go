package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerit/auth-service/internal/models"
	"github.com/peerit/auth-service/internal/repository"
	"github.com/peerit/auth-service/internal/service"
	"github.com/peerit/auth-service/pkg/response"
)

type fakeStore struct {
	mu         sync.Mutex
	users      map[string]*models.UserCredential
	refresh    map[string]*models.RefreshToken
	magicLinks map[string]*models.MagicLinkToken
}

func newFakeStore(users ...*models.UserCredential) *fakeStore {
	s := &fakeStore{
		users:      make(map[string]*models.UserCredential),
		refresh:    make(map[string]*models.RefreshToken),
		magicLinks: make(map[string]*models.MagicLinkToken),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) FindByEmail(ctx context.Context, email string) (*models.UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*models.UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (s *fakeStore) Create(ctx context.Context, user *models.UserCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeStore) IncrementFailedLogins(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}

func (s *fakeStore) LockAccount(ctx context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LockedUntil = &until
	}
	return nil
}

func (s *fakeStore) ResetFailedLogins(ctx context.Context, id string, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLogin = &lastLogin
	}
	return nil
}

func (s *fakeStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token.Token] = token
	return nil
}

func (s *fakeStore) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (s *fakeStore) TouchRefreshToken(ctx context.Context, id string, usedAt time.Time) error {
	return nil
}

func (s *fakeStore) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.refresh {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *fakeStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.refresh {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (s *fakeStore) CreateMagicLinkToken(ctx context.Context, token *models.MagicLinkToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	s.magicLinks[token.Token] = token
	return nil
}

func (s *fakeStore) FindMagicLinkToken(ctx context.Context, token string) (*models.MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt, ok := s.magicLinks[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return mt, nil
}

func (s *fakeStore) ConsumeMagicLinkToken(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mt := range s.magicLinks {
		if mt.ID == id {
			if mt.Used {
				return false, nil
			}
			mt.Used = true
			mt.UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func newTestRouter(t *testing.T, store *fakeStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:       "test-secret",
		Issuer:       "peerit-auth",
		Audience:     []string{"peerit-services"},
		AccessExpiry: 15 * time.Minute,
	})
	magicSvc := service.NewMagicLinkService(store, store, tokenSvc, validator.New(), zap.NewNop(), nil, service.MagicLinkConfig{
		Expiry:      15 * time.Minute,
		FrontendURL: "http://localhost:3000",
		BcryptCost:  bcrypt.MinCost,
	})
	authSvc := service.NewAuthService(store, store, repository.NewMemorySessionRepository(), tokenSvc, magicSvc, validator.New(), zap.NewNop(), nil, service.AuthConfig{
		RefreshExpiry:     7 * 24 * time.Hour,
		SessionTTL:        8 * time.Hour,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
	})

	r := gin.New()
	RegisterRoutes(r, "/auth", NewAuthHandler(authSvc, magicSvc), NewHealthHandler(nil, nil), authSvc)
	return r
}

func seedUser(t *testing.T, password string) *models.UserCredential {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.UserCredential{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), IsActive: true}
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginEndpointSuccess(t *testing.T) {
	r := newTestRouter(t, newFakeStore(seedUser(t, "password")))

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, "user@example.com", res.User.Email)
}

func TestLoginEndpointErrorContract(t *testing.T) {
	r := newTestRouter(t, newFakeStore(seedUser(t, "password")))

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_CREDENTIALS", body.Error)
	assert.NotEmpty(t, body.Message)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestLoginEndpointMalformedPayload(t *testing.T) {
	r := newTestRouter(t, newFakeStore(seedUser(t, "password")))

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "not-an-email"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Error)
}

func TestLoginEndpointLockout(t *testing.T) {
	r := newTestRouter(t, newFakeStore(seedUser(t, "password")))

	for i := 0; i < 4; i++ {
		w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "wrong"}, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "wrong"}, nil)
	require.Equal(t, http.StatusLocked, w.Code)

	// The lock now also blocks the correct password.
	w = doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password"}, nil)
	require.Equal(t, http.StatusLocked, w.Code)
}

func TestMagicLinkIssueAndRedeem(t *testing.T) {
	store := newFakeStore()
	r := newTestRouter(t, store)

	w := doJSON(r, http.MethodPost, "/auth/magic-link", gin.H{"email": "fresh@example.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The token never appears in the response; delivery is out of band.
	var issued struct {
		Message   string `json:"message"`
		ExpiresIn int64  `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.NotEmpty(t, issued.Message)
	assert.Greater(t, issued.ExpiresIn, int64(0))

	var token string
	for value := range store.magicLinks {
		token = value
	}
	require.NotEmpty(t, token)

	w = doJSON(r, http.MethodGet, "/auth/magic/"+token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "fresh@example.com", res.User.Email)

	// A second redemption of the same link is gone.
	w = doJSON(r, http.MethodGet, "/auth/magic/"+token, nil, nil)
	require.Equal(t, http.StatusGone, w.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	r := newTestRouter(t, newFakeStore(seedUser(t, "password")))

	login := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password"}, nil)
	require.Equal(t, http.StatusOK, login.Code)
	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &auth))

	w := doJSON(r, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": auth.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res models.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.AccessToken)

	w = doJSON(r, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": "bogus"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateAndLogoutFlow(t *testing.T) {
	r := newTestRouter(t, newFakeStore(seedUser(t, "password")))

	login := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password"}, nil)
	require.Equal(t, http.StatusOK, login.Code)
	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &auth))

	bearer := map[string]string{"Authorization": "Bearer " + auth.AccessToken}

	w := doJSON(r, http.MethodGet, "/auth/validate", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var result models.TokenValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, "u1", result.UserID)

	w = doJSON(r, http.MethodPost, "/auth/logout", gin.H{"refresh_token": auth.RefreshToken}, bearer)
	require.Equal(t, http.StatusOK, w.Code)

	// The access token is still unexpired but its session is gone.
	w = doJSON(r, http.MethodGet, "/auth/validate", nil, bearer)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SESSION_NOT_FOUND", body.Error)

	// Logout stays a success with the same dead material.
	w = doJSON(r, http.MethodPost, "/auth/logout", gin.H{"refresh_token": auth.RefreshToken}, bearer)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutAllEndpoint(t *testing.T) {
	store := newFakeStore(seedUser(t, "password"))
	r := newTestRouter(t, store)

	first := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password"}, nil)
	second := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password"}, nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var firstAuth, secondAuth models.AuthResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstAuth))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondAuth))

	// Unauthenticated callers are rejected.
	w := doJSON(r, http.MethodPost, "/auth/logout-all", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/logout-all", nil, map[string]string{"Authorization": "Bearer " + firstAuth.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)

	for _, token := range []string{firstAuth.AccessToken, secondAuth.AccessToken} {
		w := doJSON(r, http.MethodGet, "/auth/validate", nil, map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	for _, rt := range store.refresh {
		assert.True(t, rt.Revoked)
	}
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, newFakeStore())

	w := doJSON(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/peerit/auth-service/internal/middleware"
	"github.com/peerit/auth-service/internal/models"
	"github.com/peerit/auth-service/internal/service"
	appErrors "github.com/peerit/auth-service/pkg/errors"
	"github.com/peerit/auth-service/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth and magic-link services.
type AuthHandler struct {
	auth  *service.AuthService
	magic *service.MagicLinkService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(auth *service.AuthService, magic *service.MagicLinkService) *AuthHandler {
	return &AuthHandler{auth: auth, magic: magic}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 423 {object} response.ErrorBody
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// CreateMagicLink godoc
// @Summary Issue a magic link
// @Description Issue a single-use login link for an email, creating the account if needed. The token itself is delivered out of band; the response never discloses whether the account already existed.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.MagicLinkRequest true "Magic link payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Router /auth/magic-link [post]
func (h *AuthHandler) CreateMagicLink(c *gin.Context) {
	var req models.MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid magic link payload"))
		return
	}

	link, err := h.magic.Request(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"message":    "magic link sent to your email",
		"expires_in": int64(time.Until(link.ExpiresAt).Seconds()),
	})
}

// RedeemMagicLink godoc
// @Summary Redeem a magic link
// @Description Exchange a single-use magic link token for an authenticated session
// @Tags Authentication
// @Produce json
// @Param token path string true "Magic link token"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 410 {object} response.ErrorBody
// @Router /auth/magic/{token} [get]
func (h *AuthHandler) RedeemMagicLink(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidMagicLink, "magic link token required"))
		return
	}

	res, err := h.auth.LoginWithMagicLink(c.Request.Context(), token, c.GetHeader("User-Agent"), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange a refresh token for a new access token; the refresh token is not rotated
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} models.TokenResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.auth.RefreshAccessToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Logout godoc
// @Summary Logout current session
// @Description Delete the session and revoke the refresh token; succeeds even when both are already gone
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	// The body is optional; logout with no material is still a success.
	_ = c.ShouldBindJSON(&payload)

	var sessionID string
	if token, ok := middleware.BearerToken(c); ok {
		// Only the signature is checked here: the point of logout is to
		// tear the session down, so a dead session must not block it.
		if claims, err := h.auth.ParseAccessToken(token); err == nil {
			sessionID = claims.SessionID
		}
	}

	h.auth.Logout(c.Request.Context(), sessionID, payload.RefreshToken)
	response.Message(c, http.StatusOK, "logged out successfully")
}

// LogoutAll godoc
// @Summary Logout all sessions
// @Description Delete every session and revoke every refresh token for the authenticated user
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 401 {object} response.ErrorBody
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	current, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result := current.(*models.TokenValidationResult)

	if err := h.auth.LogoutAllSessions(c.Request.Context(), result.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "all sessions logged out")
}

// Validate godoc
// @Summary Validate access token
// @Description Verify the bearer token and confirm its session is still live
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.TokenValidationResult
// @Failure 401 {object} response.ErrorBody
// @Router /auth/validate [get]
func (h *AuthHandler) Validate(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or invalid authorization header"))
		return
	}

	result, err := h.auth.ValidateToken(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}

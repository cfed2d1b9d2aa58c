// Package authapi exposes the login/refresh/logout surface over HTTP. All
// rotation and theft-detection logic lives in the coordinator; handlers only
// bind parameters, capture the client fingerprint and map errors.
package authapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finnvold/refreshguard/internal/gormw"
	"github.com/finnvold/refreshguard/internal/rotation"
	"github.com/finnvold/refreshguard/internal/storage"
	"github.com/finnvold/refreshguard/internal/tokens"
)

var (
	logger = log.With().Str("component", "authapi").Logger()
)

type Handlers struct {
	db          *gormw.DB
	coordinator *rotation.Coordinator
	issuer      *tokens.Issuer

	accessTokenTTL int
}

func New(db *gormw.DB, coordinator *rotation.Coordinator, issuer *tokens.Issuer, accessTokenTTL int) *Handlers {
	return &Handlers{
		db:             db,
		coordinator:    coordinator,
		issuer:         issuer,
		accessTokenTTL: accessTokenTTL,
	}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	authRoutes := rg.Group("/auth")
	{
		authRoutes.POST("/login", h.handleLogin)
		authRoutes.POST("/refresh", h.handleRefresh)
		authRoutes.POST("/logout", h.handleLogout)
		authRoutes.GET("/.well-known/jwks.json", h.handleJWKS)
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

type handleLoginParams struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleLogin(c *gin.Context) {
	params := &handleLoginParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.String(http.StatusBadRequest, "Missing required parameters")
		return
	}

	user, err := storage.GetUserByUsernameOrEmail(h.db, params.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Generic message for security reasons
			c.String(http.StatusUnauthorized, "Invalid username or password")
			return
		}
		logger.Error().Err(err).Msg("Database error during login")
		c.String(http.StatusInternalServerError, "Database error")
		return
	}

	if !user.CheckPassword(params.Password) {
		c.String(http.StatusUnauthorized, "Invalid username or password")
		return
	}

	refreshToken, err := h.coordinator.Login(user.ID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start session")
		c.String(http.StatusInternalServerError, "Failed to start session")
		return
	}

	accessToken, err := h.issuer.Issue(user)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to issue access token")
		c.String(http.StatusInternalServerError, "Failed to issue access token")
		return
	}

	c.JSON(http.StatusOK, &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    h.accessTokenTTL,
	})
}

type handleRefreshParams struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handlers) handleRefresh(c *gin.Context) {
	params := &handleRefreshParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.String(http.StatusBadRequest, "Missing required parameters")
		return
	}

	pair, err := h.coordinator.Refresh(params.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, rotation.ErrInvalidToken),
			errors.Is(err, rotation.ErrSecurityViolation),
			errors.Is(err, rotation.ErrTooManySessions):
			// One generic body for all rejections; the distinction is for
			// logs, not for whoever is holding the token.
			c.String(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		default:
			logger.Error().Err(err).Msg("Refresh failed")
			c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	c.JSON(http.StatusOK, &tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    h.accessTokenTTL,
	})
}

type handleLogoutParams struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// handleLogout revokes every session of the user owning the presented
// refresh token. The token only has to exist, not be valid: logging out with
// an already-rotated token must still work.
func (h *Handlers) handleLogout(c *gin.Context) {
	params := &handleLogoutParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.String(http.StatusBadRequest, "Missing required parameters")
		return
	}

	token, err := storage.GetRefreshTokenByHash(h.db, rotation.HashToken(params.RefreshToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.String(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}
		logger.Error().Err(err).Msg("Database error during logout")
		c.String(http.StatusInternalServerError, "Database error")
		return
	}

	if err := h.coordinator.Logout(token.UserID); err != nil {
		logger.Error().Err(err).Msg("Failed to revoke sessions")
		c.String(http.StatusInternalServerError, "Failed to revoke sessions")
		return
	}

	c.Status(http.StatusNoContent)
}

// handleJWKS returns the JSON Web Key Set for access token verification.
func (h *Handlers) handleJWKS(c *gin.Context) {
	jwks := map[string]interface{}{
		"keys": []interface{}{h.issuer.PublicKey()},
	}
	c.JSON(http.StatusOK, jwks)
}

package authapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	gormlog "gorm.io/gorm/logger"

	"github.com/finnvold/refreshguard/internal/gormw"
	"github.com/finnvold/refreshguard/internal/models"
	"github.com/finnvold/refreshguard/internal/rotation"
	"github.com/finnvold/refreshguard/internal/storage"
	"github.com/finnvold/refreshguard/internal/tokens"
	"github.com/finnvold/refreshguard/testdata"
)

func setupTestHandlers(t *testing.T) (*gormw.DB, *gin.Engine) {
	t.Helper()

	db, err := gormw.Open(&gormw.Config{
		LogLevel:     gormlog.Silent,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	hashed, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, storage.CreateUser(db, &models.User{
		Username:       "testuser",
		Email:          "testuser@example.com",
		HashedPassword: string(hashed),
		Roles:          "user",
	}))

	issuer := tokens.NewIssuer(&tokens.IssuerConfig{
		PrivateKeyPEM:  testdata.PrivateKeyPEM,
		Issuer:         "http://localhost:8080",
		AccessTokenTTL: 900,
	})
	coordinator := rotation.NewCoordinator(db, issuer, &rotation.Policy{}, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(db, coordinator, issuer, 900).RegisterHandlers(router.Group("/"))

	return db, router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeTokens(t *testing.T, w *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	resp := tokenResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestLoginSuccess(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/login", `{"username": "testuser", "password": "correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeTokens(t, w)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 900, resp.ExpiresIn)
}

func TestLoginWrongPassword(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/login", `{"username": "testuser", "password": "wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, router, "/auth/login", `{"username": "nobody", "password": "wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginMissingParams(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/login", `{"username": "testuser"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/login", `{"username": "testuser", "password": "correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	login := decodeTokens(t, w)

	w = postJSON(t, router, "/auth/refresh", `{"refresh_token": "`+login.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	refreshed := decodeTokens(t, w)

	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// Replaying the consumed token is rejected with a generic body.
	w = postJSON(t, router, "/auth/refresh", `{"refresh_token": "`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusText(http.StatusUnauthorized), w.Body.String())

	// The replay burned the family, the rotated token is dead too.
	w = postJSON(t, router, "/auth/refresh", `{"refresh_token": "`+refreshed.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshUnknownToken(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/refresh", `{"refresh_token": "never-issued"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesSessions(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/login", `{"username": "testuser", "password": "correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	login := decodeTokens(t, w)

	w = postJSON(t, router, "/auth/logout", `{"refresh_token": "`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The session cannot be continued after logout.
	w = postJSON(t, router, "/auth/refresh", `{"refresh_token": "`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutUnknownToken(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := postJSON(t, router, "/auth/logout", `{"refresh_token": "never-issued"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWKS(t *testing.T) {
	_, router := setupTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/.well-known/jwks.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var jwks struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "RSA", jwks.Keys[0]["kty"])
}

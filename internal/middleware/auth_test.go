package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/models"
)

func setupAuthRouter(verifier *TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AuthMiddleware(verifier))
	r.GET("/me", func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "role": user.Role, "request_id": c.GetString(RequestIDKey)})
	})
	return r
}

func TestAuthMiddlewareAcceptsSignedToken(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	token, err := verifier.Sign(models.CurrentUser{ID: 42, FirstName: "Ada", Role: "ADMIN"}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	setupAuthRouter(verifier).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"role":"ADMIN","request_id":"req-7"}`, rec.Body.String())
	assert.Equal(t, "req-7", rec.Header().Get("X-Request-ID"))
}

func TestAuthMiddlewareRejects(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	expired, err := verifier.Sign(models.CurrentUser{ID: 1}, -time.Minute)
	require.NoError(t, err)
	foreign, err := NewTokenVerifier("other").Sign(models.CurrentUser{ID: 1}, time.Minute)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":        "",
		"not bearer":     "Basic abc",
		"expired":        "Bearer " + expired,
		"wrong secret":   "Bearer " + foreign,
		"unsigned token": "Bearer " + noneAlg,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			setupAuthRouter(verifier).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestVerifyPrefersUserIDClaim(t *testing.T) {
	verifier := NewTokenVerifier("secret")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           9,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "3"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	user, err := verifier.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(req))

	req.Header.Set("Authorization", "Token xyz")
	assert.Empty(t, TokenFromRequest(req))
}

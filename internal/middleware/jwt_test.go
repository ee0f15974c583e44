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

	"github.com/sfxc-dev/attendance-api/internal/models"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, expiry time.Time) string {
	t.Helper()
	claims := models.JWTClaims{
		UserID: "admin-1",
		Email:  "admin@school.edu",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(testSecret))
	r.GET("/ping", func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		user := claims.(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"user_id": user.UserID})
	})
	return r
}

func TestJWTAllowsValidToken(t *testing.T) {
	r := protectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin-1")
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := protectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r := protectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	r := protectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	r := protectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "other-secret", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

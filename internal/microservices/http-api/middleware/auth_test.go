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
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(userID string, scopes ...string) Claims {
	return Claims{
		UserID: userID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidateToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		claims, err := ValidateToken(testSecret, signToken(t, testSecret, validClaims("u1", "bookmarks:read")))
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, []string{"bookmarks:read"}, claims.Scopes)
	})

	t.Run("subject fallback", func(t *testing.T) {
		c := validClaims("")
		c.Subject = "u2"
		claims, err := ValidateToken(testSecret, signToken(t, testSecret, c))
		require.NoError(t, err)
		assert.Equal(t, "u2", claims.UserID)
	})

	t.Run("no user id", func(t *testing.T) {
		_, err := ValidateToken(testSecret, signToken(t, testSecret, validClaims("")))
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ValidateToken(testSecret, signToken(t, "another-secret-another-secret-00", validClaims("u1")))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		c := validClaims("u1")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := ValidateToken(testSecret, signToken(t, testSecret, c))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ValidateToken(testSecret, "not-a-jwt")
		assert.Error(t, err)
	})
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "token": UserToken(c)})
	})
	r.GET("/protected", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret), RequireScopes("bookmarks:read"))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"insufficient scope", "Bearer " + signToken(t, testSecret, validClaims("u1", "bookmarks:sync")), http.StatusForbidden},
		{"exact scope", "Bearer " + signToken(t, testSecret, validClaims("u1", "bookmarks:read")), http.StatusOK},
		{"wildcard scope", "Bearer " + signToken(t, testSecret, validClaims("u1", "bookmarks:*")), http.StatusOK},
		{"admin scope", "Bearer " + signToken(t, testSecret, validClaims("u1", "*")), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuthMiddleware_SetsUserID(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims("reader-7")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"reader-7","token":""}`, w.Body.String())
}

func TestRequireUserToken(t *testing.T) {
	r := newRouter(RequireUserToken())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"User data is required"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(UserTokenHeader, " tok-1 ")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"","token":"tok-1"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://app.test"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://app.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), UserTokenHeader)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// UserTokenHeader carries the remote bookmark source token.
	UserTokenHeader = "X-User-Data"

	ContextUserID    = "userID"
	ContextScopes    = "scopes"
	ContextUserToken = "userToken"
)

// Claims identify the caller. Tokens are issued elsewhere; this service only
// validates them.
type Claims struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies an HS256 token signed with secret.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// AuthMiddleware is a Gin middleware for JWT authentication of API requests
// It checks for the presence and validity of a JWT token in the Authorization header
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := ValidateToken(secret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextScopes, claims.Scopes)

		c.Next()
	}
}

// RequireUserToken rejects requests without the remote source token.
func RequireUserToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(UserTokenHeader))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "User data is required"})
			c.Abort()
			return
		}
		c.Set(ContextUserToken, token)
		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// UserToken returns the token set by RequireUserToken.
func UserToken(c *gin.Context) string {
	return c.GetString(ContextUserToken)
}

// All under here are scope-related middlewares use in route protection
// RequireScopes middleware checks if token has required scopes
func RequireScopes(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopesInterface, exists := c.Get(ContextScopes)
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "Scopes not found in token"})
			c.Abort()
			return
		}

		tokenScopes, ok := scopesInterface.([]string)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid scope format"})
			c.Abort()
			return
		}

		if !hasAllScopes(tokenScopes, requiredScopes) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "Insufficient scopes",
				"required": requiredScopes,
				"granted":  tokenScopes,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// hasAllScopes checks if token has all required scopes
func hasAllScopes(tokenScopes, requiredScopes []string) bool {
	scopeMap := make(map[string]bool)
	for _, scope := range tokenScopes {
		scopeMap[scope] = true
	}

	// Check for wildcard admin scope
	if scopeMap["*"] || scopeMap["admin:*"] {
		return true
	}

	for _, required := range requiredScopes {
		if !scopeMap[required] {
			// Check for wildcard matches (e.g., "bookmarks:*" for "bookmarks:read")
			if !matchesWildcardScope(tokenScopes, required) {
				return false
			}
		}
	}

	return true
}

// matchesWildcardScope handles wildcard scope matching
func matchesWildcardScope(tokenScopes []string, required string) bool {
	for _, scope := range tokenScopes {
		if len(scope) > 0 && scope[len(scope)-1] == '*' {
			prefix := scope[:len(scope)-1]
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}
	return false
}

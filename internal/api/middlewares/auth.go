// internal/api/middlewares/auth.go
// JWT 認證中介軟體 - 狀態 API 使用的 HS256 Token

package middlewares

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer     = "bulk-mailer"
	permissionAdmin = "admin"
	claimsKey       = "claims"
)

// StatusClaims 狀態 API Token 內容
type StatusClaims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// IssueToken 簽發狀態 API 使用的 HS256 Token
// ttl 為 0 表示不過期
func IssueToken(secret, subject string, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StatusClaims{
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			Subject:  subject,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// JWTAuth 驗證 Bearer Token，通過後將 claims 存入 context
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "missing_token", "Authorization header is required")
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			abort(c, http.StatusUnauthorized, "invalid_token_format", "Authorization header must be Bearer token")
			return
		}

		claims := &StatusClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithIssuer(tokenIssuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequirePermission 權限檢查，admin 可存取全部
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, _ := c.Get(claimsKey)
		claims, _ := value.(*StatusClaims)
		if claims == nil ||
			!(slices.Contains(claims.Permissions, permission) || slices.Contains(claims.Permissions, permissionAdmin)) {
			abort(c, http.StatusForbidden, "permission_denied", "You don't have permission to access this resource")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

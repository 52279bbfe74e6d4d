package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casamarket/checkout/pkg/config"
	"github.com/casamarket/checkout/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const (
	CallerIDKey   = "caller_id"
	CallerRoleKey = "caller_role"
)

// AuthMiddleware validates the bearer token of the authentication
// collaborator and attaches caller identity and role to the context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing bearer token"))
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid claims"))
			return
		}
		if sub, ok := claims["sub"].(string); ok {
			c.Set(CallerIDKey, sub)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(CallerRoleKey, role)
		}
		c.Next()
	}
}

// RequireRole gates privileged endpoints on the caller's role claim.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CallerRoleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeBadRequest, "insufficient role"))
			return
		}
		c.Next()
	}
}

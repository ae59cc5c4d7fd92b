package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"schoolattend/internal/domain"
)

const claimsKey = "claims"

// Authenticate enforces bearer access tokens signed with HS256.
func Authenticate(iss Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, domain.Errorf(domain.CodeUnauthorized, "missing bearer token"))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := iss.Parse(tokenStr)
		if err != nil || claims.Type != TypeAccess {
			abort(c, domain.Errorf(domain.CodeUnauthorized, "invalid token"))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated role is
// one of roles. It must run after Authenticate.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, domain.Errorf(domain.CodeUnauthorized, "missing credentials"))
			return
		}
		for _, r := range roles {
			if domain.Role(claims.Role) == r {
				c.Next()
				return
			}
		}
		abort(c, domain.Errorf(domain.CodeForbidden, "role %q may not perform this action", claims.Role))
	}
}

// ClaimsFrom returns the claims stored by Authenticate.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func abort(c *gin.Context, err *domain.Error) {
	c.AbortWithStatusJSON(domain.HTTPStatus(err), gin.H{"error": err})
}

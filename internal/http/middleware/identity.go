package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// IdentityCookie carries the identity established by the last login.
	IdentityCookie = "calendar_identity"

	ginIdentityKey = "identity"
)

var identityHeaders = []string{"X-User-Email", "Email"}

// Identity resolves the caller's identity from the identity headers or the
// login cookie and rejects the request when none is present.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := lookupIdentity(c)
		if identity == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "not_authenticated",
				"error_description": "User not authenticated.",
			})
			return
		}
		c.Set(ginIdentityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the identity resolved by Identity.
func GetIdentity(c *gin.Context) (string, bool) {
	value, ok := c.Get(ginIdentityKey)
	if !ok {
		return "", false
	}
	identity, ok := value.(string)
	return identity, ok && identity != ""
}

func lookupIdentity(c *gin.Context) string {
	for _, header := range identityHeaders {
		if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
			return v
		}
	}
	if cookie, err := c.Cookie(IdentityCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

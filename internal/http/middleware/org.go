package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/http/respond"
	"github.com/smallbiznis/authbox/internal/org"
)

const organizationKey = "organization"

// Org resolves the organization from the Host header and stores it in the
// gin context. Unknown or disabled organizations end the request.
func Org(resolver *org.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		organization, err := resolver.Resolve(c.Request.Context(), c.Request.Host)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.Set(organizationKey, organization)
		c.Next()
	}
}

// GetOrganization extracts the organization resolved by Org.
func GetOrganization(c *gin.Context) (domain.Organization, bool) {
	value, ok := c.Get(organizationKey)
	if !ok {
		return domain.Organization{}, false
	}
	organization, ok := value.(domain.Organization)
	return organization, ok
}

// Except runs h for every request whose path is not listed.
func Except(h gin.HandlerFunc, paths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		h(c)
	}
}

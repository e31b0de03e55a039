// Package identity isolates how a request is bound to a participant id.
// The wire protocol trusts client-generated ids; that trust boundary lives
// behind Provider so a stronger scheme can replace it without touching the
// coordinator or relay.
package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey is where middleware stores the resolved participant id.
const ContextKey = "user_id"

var ErrNoIdentity = errors.New("no identity presented")

// Provider resolves the participant id a request is acting as.
type Provider interface {
	Identify(c *gin.Context) (string, error)
}

// Claimed accepts the id the client asserts, via the X-User-ID header.
// This reproduces the source trust model: ids are opaque, client-generated
// and unverified.
type Claimed struct{}

func (Claimed) Identify(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}

// Require resolves an identity and aborts with 401 when none is presented.
func Require(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := p.Identify(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ContextKey, id)
		c.Next()
	}
}

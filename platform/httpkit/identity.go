package httpkit

import (
	"slices"

	"github.com/gin-gonic/gin"
)

// AnonymousUserID owns sessions created while authentication is disabled.
const AnonymousUserID = "anonymous"

// Identity is the caller as seen by the board API.
type Identity struct {
	UserID        string
	Name          string
	Roles         []string
	Authenticated bool
}

// HasRole reports whether the CRM token granted role.
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// GetIdentity reads the identity AuthRequired stored on the context, or the
// anonymous identity when there is none.
func GetIdentity(c *gin.Context) Identity {
	uid, ok := UserID(c)
	if !ok {
		return Identity{UserID: AnonymousUserID}
	}
	return Identity{
		UserID:        uid,
		Name:          c.GetString(ContextUserNameKey),
		Roles:         c.GetStringSlice(ContextRolesKey),
		Authenticated: true,
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserIDKey)
	return id, id != ""
}

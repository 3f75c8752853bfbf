package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Roles carried in the "role" claim of access tokens.
const (
	RoleCliente = "CLIENTE"
	RoleStaff   = "STAFF"
)

const identityKey = "identity"

// Identity is the authenticated caller extracted from the access token.
type Identity struct {
	ClientID uint64
	Role     string
}

// IsStaff reports whether the caller may act on behalf of any client.
func (id Identity) IsStaff() bool { return id.Role == RoleStaff }

// CanActFor reports whether the caller may read or change reservations
// of clientID.
func (id Identity) CanActFor(clientID uint64) bool {
	return id.IsStaff() || id.ClientID == clientID
}

// CurrentIdentity returns the identity stored by JWTAuth.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// subjectID converts a "sub" claim into a client id.  Tokens issued by
// the auth service encode it either as a JSON number or as a string.
func subjectID(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return uint64(t), true
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

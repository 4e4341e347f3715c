package edge

import (
	"context"
	"strconv"
	"time"
)

// Roles carried in access tokens.
const (
	RoleGuest = "ROLE_GUEST"
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// Identity is the authenticated caller of one request. It is never persisted.
type Identity struct {
	Subject  string
	MemberID int64
	Role     string
}

// MemberIDString renders MemberID the way it is propagated downstream.
func (i Identity) MemberIDString() string {
	return strconv.FormatInt(i.MemberID, 10)
}

// HasRole reports whether the identity holds one of roles.
func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// TokenPair is returned by login and reissue.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// MemberLookup resolves a subject to its current identity attributes. It
// returns ErrMemberNotFound when the subject has no member record.
type MemberLookup interface {
	LookupIdentity(ctx context.Context, subject string) (Identity, error)
}

package members

import (
	"time"

	"github.com/zipbob/edge"
)

// MinNicknameLength is the shortest nickname accepted on join or update.
const MinNicknameLength = 2

// Member is one row of the members table. Email is the token subject.
type Member struct {
	ID        int64
	Email     string
	Nickname  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity returns the attributes carried in the member's access tokens.
func (m *Member) Identity() edge.Identity {
	return edge.Identity{
		Subject:  m.Email,
		MemberID: m.ID,
		Role:     m.Role,
	}
}

// Info is the cached my-info projection.
type Info struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

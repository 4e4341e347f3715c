package members

import "context"

// Repository persists members. Implementations return edge.ErrMemberNotFound
// for missing rows and edge.ErrDuplicateEmail or edge.ErrDuplicateNickname for
// unique violations, wrapped with the failing operation.
type Repository interface {
	ByEmail(ctx context.Context, email string) (*Member, error)
	NicknameExists(ctx context.Context, nickname string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// Create inserts m and fills in its ID and timestamps.
	Create(ctx context.Context, m *Member) error
	// UpdateProfile sets nickname and role of the member with id.
	UpdateProfile(ctx context.Context, id int64, nickname, role string) error
	Delete(ctx context.Context, id int64) error
}

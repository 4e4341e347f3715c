package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/members/migrations"
	"github.com/zipbob/edge/internal/routing"
)

const (
	emailConstraint    = "members_email_key"
	nicknameConstraint = "members_nickname_key"
)

// PostgresRepository stores members in Postgres. The pool used for each call
// is chosen by the capability bound to the context.
type PostgresRepository struct {
	router *routing.Router
}

// NewPostgresRepository creates a repository on top of router.
func NewPostgresRepository(router *routing.Router) *PostgresRepository {
	return &PostgresRepository{router: router}
}

// ByEmail loads the member whose email is the token subject.
func (r *PostgresRepository) ByEmail(ctx context.Context, email string) (*Member, error) {
	const op = "members.postgres.ByEmail"

	query := `
		SELECT id, email, COALESCE(nickname, ''), role, created_at, updated_at
		FROM members
		WHERE email = $1
	`

	var m Member
	err := r.router.DB(ctx).QueryRow(ctx, query, email).Scan(
		&m.ID,
		&m.Email,
		&m.Nickname,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, edge.ErrMemberNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &m, nil
}

// NicknameExists reports whether any member holds nickname.
func (r *PostgresRepository) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	const op = "members.postgres.NicknameExists"

	var exists bool
	err := r.router.DB(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE nickname = $1)`, nickname,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// EmailExists reports whether a member is registered under email.
func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const op = "members.postgres.EmailExists"

	var exists bool
	err := r.router.DB(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// Create inserts m and fills in the generated ID and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, m *Member) error {
	const op = "members.postgres.Create"

	query := `
		INSERT INTO members(email, nickname, role)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id, created_at, updated_at
	`

	err := r.router.DB(ctx).QueryRow(ctx, query, m.Email, m.Nickname, m.Role).Scan(
		&m.ID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, uniqueViolation(err))
	}
	return nil
}

// UpdateProfile sets nickname and role of the member with id.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int64, nickname, role string) error {
	const op = "members.postgres.UpdateProfile"

	query := `
		UPDATE members
		SET nickname = NULLIF($2, ''), role = $3, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.router.DB(ctx).Exec(ctx, query, id, nickname, role)
	if err != nil {
		return fmt.Errorf("%s: %w", op, uniqueViolation(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, edge.ErrMemberNotFound)
	}
	return nil
}

// Delete removes the member with id.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	const op = "members.postgres.Delete"

	tag, err := r.router.DB(ctx).Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, edge.ErrMemberNotFound)
	}
	return nil
}

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case emailConstraint:
		return edge.ErrDuplicateEmail
	case nicknameConstraint:
		return edge.ErrDuplicateNickname
	default:
		return err
	}
}

// RunMigrations applies the embedded schema migrations to the database at dsn.
func RunMigrations(ctx context.Context, dsn string) error {
	const op = "members.RunMigrations"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: db open: %w", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)

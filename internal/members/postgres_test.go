package members

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/routing"
)

// Integration tests against a real PostgreSQL started with testcontainers.
//
//	GO_TEST_INTEGRATION=1 go test ./internal/members -run Integration -v -count=1

func startPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	require.Eventually(t, func() bool {
		return RunMigrations(ctx, dsn) == nil
	}, 30*time.Second, 500*time.Millisecond)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewPostgresRepository(routing.New(pool, nil))
}

func TestIntegration_CreateAndLoad(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	m := &Member{Email: "a@x.com", Nickname: "alice", Role: edge.RoleUser}
	require.NoError(t, repo.Create(ctx, m))
	require.NotZero(t, m.ID)
	require.False(t, m.CreatedAt.IsZero())

	got, err := repo.ByEmail(routing.Bind(ctx, routing.Read), "a@x.com")
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
	require.Equal(t, "alice", got.Nickname)

	exists, err := repo.NicknameExists(ctx, "alice")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.EmailExists(ctx, "nobody@x.com")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = repo.ByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, edge.ErrMemberNotFound)
}

func TestIntegration_UniqueViolationsAreClassified(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Member{Email: "a@x.com", Nickname: "alice", Role: edge.RoleUser}))

	err := repo.Create(ctx, &Member{Email: "a@x.com", Nickname: "other", Role: edge.RoleUser})
	require.ErrorIs(t, err, edge.ErrDuplicateEmail)

	err = repo.Create(ctx, &Member{Email: "b@x.com", Nickname: "alice", Role: edge.RoleUser})
	require.ErrorIs(t, err, edge.ErrDuplicateNickname)
}

func TestIntegration_GuestsWithoutNickname(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	g1 := &Member{Email: "g1@x.com", Role: edge.RoleGuest}
	require.NoError(t, repo.Create(ctx, g1))
	require.NoError(t, repo.Create(ctx, &Member{Email: "g2@x.com", Role: edge.RoleGuest}))

	require.NoError(t, repo.UpdateProfile(ctx, g1.ID, "guesty", edge.RoleUser))
	got, err := repo.ByEmail(ctx, "g1@x.com")
	require.NoError(t, err)
	require.Equal(t, "guesty", got.Nickname)
	require.Equal(t, edge.RoleUser, got.Role)

	require.NoError(t, repo.Delete(ctx, g1.ID))
	require.ErrorIs(t, repo.Delete(ctx, g1.ID), edge.ErrMemberNotFound)
	require.ErrorIs(t, repo.UpdateProfile(ctx, g1.ID, "x", edge.RoleUser), edge.ErrMemberNotFound)
}

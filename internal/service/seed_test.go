package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/lumanagi/lumanagi-auth/internal/repository/postgres"
	"github.com/lumanagi/lumanagi-auth/internal/service"
	"github.com/lumanagi/lumanagi-auth/internal/testutil"
)

const seedYAML = `users:
  - email: admin@lumanagi.com
    password: demo123
    full_name: Lumanagi Admin
    role: admin
  - email: operator@lumanagi.com
    password: op-secret
    full_name: Lumanagi Operator
    role: operator
  - email: ""
    password: ignored
`

func TestSeedUsers(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	require.NoError(t, service.SeedUsers(ctx, repos.User, path))

	admin, err := repos.User.GetByEmail(ctx, "admin@lumanagi.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("demo123")))

	op, err := repos.User.GetByEmail(ctx, "operator@lumanagi.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, op.Role)

	// Re-seeding is a no-op for existing accounts.
	require.NoError(t, service.SeedUsers(ctx, repos.User, path))
	again, err := repos.User.GetByEmail(ctx, "admin@lumanagi.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}

func TestSeedUsersRejectsUnknownRole(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)

	path := filepath.Join(t.TempDir(), "users.yaml")
	bad := "users:\n  - email: x@lumanagi.com\n    password: pw\n    role: superuser\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	err := service.SeedUsers(context.Background(), repos.User, path)
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

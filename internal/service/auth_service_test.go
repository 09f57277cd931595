package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/lumanagi/lumanagi-auth/internal/repository"
	"github.com/lumanagi/lumanagi-auth/internal/repository/postgres"
	"github.com/lumanagi/lumanagi-auth/internal/service"
	"github.com/lumanagi/lumanagi-auth/internal/testutil"
)

func TestAuthService_Register(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     service.RegisterInput
		setup     func()
		wantErr   error
		checkUser bool
	}{
		{
			name: "successful registration",
			input: service.RegisterInput{
				Email:    "newuser@lumanagi.com",
				Password: "password123",
				FullName: "New User",
			},
			checkUser: true,
		},
		{
			name: "duplicate email",
			input: service.RegisterInput{
				Email:    "existing@lumanagi.com",
				Password: "password123",
			},
			setup: func() {
				testutil.NewUserBuilder().
					WithEmail("existing@lumanagi.com").
					Build(t, testDB.DB)
			},
			wantErr: domain.ErrEmailExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean up between tests
			testDB.Truncate(t)

			if tt.setup != nil {
				tt.setup()
			}

			result, err := authService.Register(ctx, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			if tt.checkUser {
				assert.NotNil(t, result.User)
				assert.Equal(t, tt.input.Email, result.User.Email)
				assert.Equal(t, domain.RoleUser, result.User.Role)
				assert.NotEmpty(t, result.AccessToken)
				assert.NotEmpty(t, result.RefreshToken)
			}
		})
	}
}

// racingUserRepo hides existing rows from the pre-insert lookup, the
// way a concurrent registration would, so Create lands on the unique
// index.
type racingUserRepo struct {
	repository.UserRepository
}

func (r *racingUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func TestAuthService_RegisterConcurrentDuplicate(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(&racingUserRepo{repos.User}, repos.Registry, nil, cfg)
	ctx := context.Background()

	_, err := authService.Register(ctx, service.RegisterInput{
		Email:    "race@lumanagi.com",
		Password: "password123",
	})
	require.NoError(t, err)

	// The duplicate that beat the lookup still conflicts, not a raw
	// database error.
	_, err = authService.Register(ctx, service.RegisterInput{
		Email:    "race@lumanagi.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestAuthService_Login(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	user, rawPassword := testutil.NewUserBuilder().
		WithEmail("loginuser@lumanagi.com").
		WithPassword("correctpassword").
		Build(t, testDB.DB)

	tests := []struct {
		name    string
		input   service.LoginInput
		wantErr error
	}{
		{
			name: "successful login",
			input: service.LoginInput{
				Email:    user.Email,
				Password: rawPassword,
			},
		},
		{
			name: "wrong password",
			input: service.LoginInput{
				Email:    user.Email,
				Password: "wrongpassword",
			},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name: "non-existent user",
			input: service.LoginInput{
				Email:    "nonexistent@lumanagi.com",
				Password: "anypassword",
			},
			wantErr: domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := authService.Login(ctx, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, result.User)
			assert.Equal(t, user.ID, result.User.ID)
			assert.NotEmpty(t, result.AccessToken)
			assert.NotEmpty(t, result.RefreshToken)
		})
	}
}

func TestAuthService_LoginFederatedOnlyAccount(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	verifier := &fakeVerifier{identity: &service.Identity{
		Provider: "google",
		Subject:  "google-sub-1",
		Email:    "federated@lumanagi.com",
		Name:     "Federated User",
	}}
	authService := service.NewAuthService(repos.User, repos.Registry, verifier, cfg)
	ctx := context.Background()

	_, err := authService.GoogleLogin(ctx, "any-token")
	require.NoError(t, err)

	// The account has no password hash; password login must fail
	// without revealing why.
	_, err = authService.Login(ctx, service.LoginInput{
		Email:    "federated@lumanagi.com",
		Password: "",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_Refresh(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	result, err := authService.Register(ctx, service.RegisterInput{
		Email:    "refreshuser@lumanagi.com",
		Password: "password123",
	})
	require.NoError(t, err)

	t.Run("rotation succeeds once and replays fail", func(t *testing.T) {
		rotated, err := authService.Refresh(ctx, result.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, rotated.AccessToken)
		assert.NotEmpty(t, rotated.RefreshToken)
		assert.NotEqual(t, result.RefreshToken, rotated.RefreshToken)

		// The consumed token must never rotate again.
		_, err = authService.Refresh(ctx, result.RefreshToken)
		assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)

		// The replacement still works.
		_, err = authService.Refresh(ctx, rotated.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("never-issued token fails", func(t *testing.T) {
		_, err := authService.Refresh(ctx, "never.issued.token")
		assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		login, err := authService.Login(ctx, service.LoginInput{
			Email:    "refreshuser@lumanagi.com",
			Password: "password123",
		})
		require.NoError(t, err)

		// Signed with the wrong secret for this purpose, so it must
		// fail with the same uniform error.
		_, err = authService.Refresh(ctx, login.AccessToken)
		assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	})
}

func TestAuthService_MultipleDevices(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	_, rawPassword := testutil.NewUserBuilder().
		WithEmail("devices@lumanagi.com").
		Build(t, testDB.DB)

	// Two logins give two independently valid refresh tokens.
	first, err := authService.Login(ctx, service.LoginInput{Email: "devices@lumanagi.com", Password: rawPassword})
	require.NoError(t, err)
	second, err := authService.Login(ctx, service.LoginInput{Email: "devices@lumanagi.com", Password: rawPassword})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Revoking one leaves the other usable.
	require.NoError(t, authService.Logout(ctx, first.RefreshToken))
	_, err = authService.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	_, err = authService.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_LogoutIdempotent(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	result, err := authService.Register(ctx, service.RegisterInput{
		Email:    "logoutuser@lumanagi.com",
		Password: "password123",
	})
	require.NoError(t, err)

	require.NoError(t, authService.Logout(ctx, result.RefreshToken))
	require.NoError(t, authService.Logout(ctx, result.RefreshToken))
	require.NoError(t, authService.Logout(ctx, "garbage"))

	_, err = authService.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestAuthService_LogoutAll(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	_, rawPassword := testutil.NewUserBuilder().
		WithEmail("logoutall@lumanagi.com").
		Build(t, testDB.DB)

	first, err := authService.Login(ctx, service.LoginInput{Email: "logoutall@lumanagi.com", Password: rawPassword})
	require.NoError(t, err)
	second, err := authService.Login(ctx, service.LoginInput{Email: "logoutall@lumanagi.com", Password: rawPassword})
	require.NoError(t, err)

	require.NoError(t, authService.LogoutAll(ctx, first.User.ID))

	_, err = authService.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	_, err = authService.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestAuthService_ValidateAccessToken(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	result, err := authService.Register(ctx, service.RegisterInput{
		Email:    "tokenuser@lumanagi.com",
		Password: "password123",
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:    "valid token",
			token:   result.AccessToken,
			wantErr: false,
		},
		{
			name:    "refresh token rejected as access token",
			token:   result.RefreshToken,
			wantErr: true,
		},
		{
			name:    "malformed token",
			token:   "notavalidjwt",
			wantErr: true,
		},
		{
			name:    "empty token",
			token:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := authService.ValidateAccessToken(tt.token)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, result.User.ID.String(), claims.Subject)
			assert.Equal(t, result.User.Email, claims.Email)
			assert.Equal(t, domain.RoleUser, claims.Role)
		})
	}
}

// Revoking every refresh token must not invalidate outstanding access
// tokens; those are self-verifying and never registry-checked.
func TestAuthService_AccessTokenSurvivesRevocation(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	result, err := authService.Register(ctx, service.RegisterInput{
		Email:    "survivor@lumanagi.com",
		Password: "password123",
	})
	require.NoError(t, err)

	require.NoError(t, authService.LogoutAll(ctx, result.User.ID))

	claims, err := authService.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID.String(), claims.Subject)
}

func TestAuthService_GetUserByID(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	authService := service.NewAuthService(repos.User, repos.Registry, nil, cfg)
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().
		WithEmail("getbyid@lumanagi.com").
		Build(t, testDB.DB)

	found, err := authService.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)

	_, err = authService.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

type fakeVerifier struct {
	identity *service.Identity
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, idToken string) (*service.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func TestAuthService_GoogleLogin(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	ctx := context.Background()

	identity := &service.Identity{
		Provider: "google",
		Subject:  "google-sub-42",
		Email:    "gmailuser@lumanagi.com",
		Name:     "Gmail User",
	}
	verifier := &fakeVerifier{identity: identity}
	authService := service.NewAuthService(repos.User, repos.Registry, verifier, cfg)

	t.Run("first sign-in creates the account", func(t *testing.T) {
		result, err := authService.GoogleLogin(ctx, "valid-id-token")
		require.NoError(t, err)
		assert.Equal(t, identity.Email, result.User.Email)
		assert.Equal(t, identity.Name, result.User.FullName)
		assert.Equal(t, domain.RoleUser, result.User.Role)
		assert.Empty(t, result.User.PasswordHash)
		assert.NotEmpty(t, result.RefreshToken)
	})

	t.Run("second sign-in reuses the account", func(t *testing.T) {
		result, err := authService.GoogleLogin(ctx, "valid-id-token")
		require.NoError(t, err)

		stored, err := repos.User.GetByEmail(ctx, identity.Email)
		require.NoError(t, err)
		assert.Equal(t, stored.ID, result.User.ID)
	})

	t.Run("links identity on existing password account", func(t *testing.T) {
		user, _ := testutil.NewUserBuilder().
			WithEmail("linked@lumanagi.com").
			Build(t, testDB.DB)
		verifier.identity = &service.Identity{
			Provider: "google",
			Subject:  "google-sub-43",
			Email:    user.Email,
			Name:     user.FullName,
		}

		result, err := authService.GoogleLogin(ctx, "valid-id-token")
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.User.ID)

		stored, err := repos.User.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Contains(t, string(stored.Identities), "google-sub-43")
	})

	t.Run("rejected id token fails uniformly", func(t *testing.T) {
		failing := service.NewAuthService(repos.User, repos.Registry, &fakeVerifier{err: domain.ErrInvalidIDToken}, cfg)
		_, err := failing.GoogleLogin(ctx, "bad-token")
		assert.ErrorIs(t, err, domain.ErrInvalidIDToken)
	})
}

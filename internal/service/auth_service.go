package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lumanagi/lumanagi-auth/internal/config"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/lumanagi/lumanagi-auth/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuthService struct {
	userRepo repository.UserRepository
	registry repository.TokenRegistry
	verifier IdentityVerifier
	cfg      *config.Config
}

func NewAuthService(userRepo repository.UserRepository, registry repository.TokenRegistry, verifier IdentityVerifier, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
	}
}

// Claims is the payload carried by both token kinds. Subject holds the
// user id; ID is only set on refresh tokens so two pairs issued in the
// same second still differ.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	existing, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err == nil && existing != nil {
		return nil, domain.ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		FullName:     input.FullName,
		Role:         domain.RoleUser,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// A concurrent registration can slip past the lookup above and
		// land on the unique index instead.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrEmailExists
		}
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	// Federated-only accounts have no password to compare.
	if user.PasswordHash == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issueTokens(ctx, user)
}

// GoogleLogin verifies a Google ID token and terminates in the same
// local token-issuance flow as password login. First sign-in creates
// the account; later sign-ins link the identity if it is not yet
// recorded.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	if s.verifier == nil {
		return nil, domain.ErrInvalidIDToken
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, domain.ErrInvalidIDToken
	}

	user, err := s.userRepo.GetByEmail(ctx, identity.Email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		user, err = s.createFederatedUser(ctx, identity)
		if err != nil {
			return nil, err
		}
	} else if err := s.linkIdentity(ctx, user, identity); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

// GoogleAuthURL returns the consent-page URL that starts the
// browser code flow, bound to the caller-supplied state token.
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	flow, ok := s.verifier.(CodeFlowVerifier)
	if !ok {
		return "", domain.ErrFederatedLoginOff
	}
	return flow.AuthURL(state), nil
}

// GoogleCodeLogin completes the code flow: the callback code is
// exchanged for an ID token, which then takes the GoogleLogin path.
func (s *AuthService) GoogleCodeLogin(ctx context.Context, code string) (*AuthResult, error) {
	flow, ok := s.verifier.(CodeFlowVerifier)
	if !ok {
		return nil, domain.ErrFederatedLoginOff
	}

	idToken, err := flow.Exchange(ctx, code)
	if err != nil {
		return nil, domain.ErrInvalidIDToken
	}
	return s.GoogleLogin(ctx, idToken)
}

func (s *AuthService) createFederatedUser(ctx context.Context, identity *Identity) (*domain.User, error) {
	identities, err := json.Marshal([]domain.FederatedIdentity{{
		Provider: identity.Provider,
		Subject:  identity.Subject,
		LinkedAt: time.Now(),
	}})
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:         uuid.New(),
		Email:      identity.Email,
		FullName:   identity.Name,
		Role:       domain.RoleUser,
		Identities: datatypes.JSON(identities),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) linkIdentity(ctx context.Context, user *domain.User, identity *Identity) error {
	var linked []domain.FederatedIdentity
	if len(user.Identities) > 0 {
		if err := json.Unmarshal(user.Identities, &linked); err != nil {
			return err
		}
	}

	for _, li := range linked {
		if li.Provider == identity.Provider && li.Subject == identity.Subject {
			return nil
		}
	}

	linked = append(linked, domain.FederatedIdentity{
		Provider: identity.Provider,
		Subject:  identity.Subject,
		LinkedAt: time.Now(),
	})
	raw, err := json.Marshal(linked)
	if err != nil {
		return err
	}

	user.Identities = datatypes.JSON(raw)
	user.UpdatedAt = time.Now()
	return s.userRepo.Update(ctx, user)
}

// Refresh rotates a refresh token: the presented token is verified,
// atomically removed from the registry, and replaced by a fresh pair.
// Every failure mode collapses to ErrInvalidRefreshToken so callers
// cannot probe registry contents.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if _, err := s.parseToken(refreshToken, s.cfg.RefreshSecret); err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	userID, err := s.registry.Consume(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes the presented refresh token. It is idempotent and
// deliberately lax: a malformed or already-revoked token is not an
// error, the caller's session is over either way.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.registry.Revoke(ctx, hashToken(refreshToken))
}

// LogoutAll revokes every outstanding refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return s.registry.RevokeAllForUser(ctx, userID)
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.userRepo.List(ctx, limit, offset)
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*AuthResult, error) {
	pair, expiresAt, err := s.signPair(user)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Register(ctx, hashToken(pair.RefreshToken), user.ID, expiresAt); err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *AuthService) signPair(user *domain.User) (*TokenPair, time.Time, error) {
	now := time.Now()

	accessClaims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return nil, time.Time{}, err
	}

	refreshExpiry := now.Add(s.cfg.RefreshTTL)
	refreshClaims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return nil, time.Time{}, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, refreshExpiry, nil
}

// ValidateAccessToken verifies signature and expiry against the access
// secret. It never consults the registry: access tokens are
// self-verifying by design, only refresh tokens are tracked statefully.
func (s *AuthService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parseToken(tokenString, s.cfg.AccessSecret)
}

func (s *AuthService) parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// hashToken keys the registry by SHA-256 of the token string so the
// raw token never touches the datastore.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/ports"
)

// CredentialService implements signup, login and operator account management.
// It is the login collaborator of the session layer: the token it issues is
// opaque to SessionStore.
type CredentialService struct {
	repo      ports.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

var (
	_ ports.CredentialService = (*CredentialService)(nil)
	_ ports.AccountAdmin      = (*CredentialService)(nil)
)

func NewCredentialService(repo ports.UserRepository, jwtSecret string, tokenTTL time.Duration, log zerolog.Logger) *CredentialService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &CredentialService{
		repo:      repo,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "credentials").Logger(),
	}
}

// Register creates a self-service account. Admin accounts cannot be created
// this way.
func (s *CredentialService) Register(ctx context.Context, email, name, password string, role domain.Role) (*domain.User, error) {
	if role != domain.RoleClient && role != domain.RoleExpert {
		return nil, domain.ErrInvalidCredentials
	}
	return s.CreateAccount(ctx, email, name, password, role)
}

// CreateAccount creates an active account with any role.
func (s *CredentialService) CreateAccount(ctx context.Context, email, name, password string, role domain.Role) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" || !role.Valid() {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    s.now(),
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", created.ID).Str("role", string(role)).Msg("account created")

	sanitized := created.Sanitized()
	return &sanitized, nil
}

// Login checks credentials and account status and returns a token with the
// sanitized user. Unknown emails and wrong passwords are indistinguishable.
func (s *CredentialService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}
	if err := domain.StatusError(user.Status); err != nil {
		return "", nil, err
	}

	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	user.LastLoginAt = now

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, err
	}

	sanitized := user.Sanitized()
	return token, &sanitized, nil
}

// SetStatus changes an account's status server-side. Sessions already cached
// by clients keep the old snapshot until their next login.
func (s *CredentialService) SetStatus(ctx context.Context, email string, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrUnknownStatus
	}
	if err := s.repo.UpdateStatus(ctx, email, status); err != nil {
		return err
	}
	s.log.Info().Str("email", email).Str("status", string(status)).Msg("account status changed")
	return nil
}

func (s *CredentialService) generateToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"exp":  s.now().Add(s.tokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}

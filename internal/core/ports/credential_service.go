package ports

import (
	"context"

	"github.com/marketplace/storefront/internal/core/domain"
)

// CredentialService is the login/signup collaborator. It returns sanitized
// users and opaque tokens; the session layer only consumes successful results.
type CredentialService interface {
	Register(ctx context.Context, email, name, password string, role domain.Role) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
}

// AccountAdmin covers server-side account management used by operators.
type AccountAdmin interface {
	CreateAccount(ctx context.Context, email, name, password string, role domain.Role) (*domain.User, error)
	SetStatus(ctx context.Context, email string, status domain.Status) error
}

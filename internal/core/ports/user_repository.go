package ports

import (
	"context"
	"time"

	"github.com/marketplace/storefront/internal/core/domain"
)

// UserRepository defines the persistence contract for account records.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdateStatus(ctx context.Context, email string, status domain.Status) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

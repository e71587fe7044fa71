package repositories

import (
	"context"

	"github.com/openedu/course-service/internal/models"
)

// UserRepository is read-only: this service does not own user data, it only
// resolves identity and role (student / professor / admin) for scoring and
// rendering decisions.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)

	GetRole(ctx context.Context, id string) (models.UserRole, error)

	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}

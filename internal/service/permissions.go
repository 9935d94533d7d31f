package service

import (
	"context"
	"fmt"

	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// PermissionResolver вычисляет эффективный набор разрешений пользователя
// по текущему графу ролей. Результат не кэшируется.
type PermissionResolver struct {
	store repository.Store
}

// NewPermissionResolver создаёт PermissionResolver.
func NewPermissionResolver(store repository.Store) *PermissionResolver {
	return &PermissionResolver{store: store}
}

// Resolve возвращает разрешения пользователя вне транзакции.
func (p *PermissionResolver) Resolve(ctx context.Context, userID int64) ([]string, error) {
	return resolveWith(ctx, p.store.Repos().Roles, userID)
}

// resolveWith вычисляет разрешения через переданный репозиторий, в том числе
// внутри транзакции, которая только что изменила роли пользователя.
func resolveWith(ctx context.Context, roles repository.RoleRepository, userID int64) ([]string, error) {
	grants, err := roles.GrantsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение ролей пользователя %d: %w", userID, err)
	}
	return rbac.Resolve(grants), nil
}

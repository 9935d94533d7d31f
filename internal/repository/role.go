package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
)

// RoleRepository — граф ролей: roles, permissions и связи user_roles / role_permissions.
type RoleRepository interface {
	// GetByName возвращает роль по имени.
	GetByName(ctx context.Context, name string) (*model.Role, error)
	// GrantsForUser возвращает роли пользователя с их разрешениями.
	GrantsForUser(ctx context.Context, userID int64) ([]rbac.Grant, error)
	// AddUserRole назначает роль. Повторное назначение — no-op.
	AddUserRole(ctx context.Context, userID, roleID int64) error
	// ClearUserRoles снимает все роли пользователя.
	ClearUserRoles(ctx context.Context, userID int64) error
	// RoleNamesForUser возвращает имена ролей пользователя.
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	// UserIDsWithRole возвращает пользователей, у которых есть роль.
	UserIDsWithRole(ctx context.Context, roleName string) ([]int64, error)
}

// roleRepo — реализация RoleRepository.
type roleRepo struct {
	db DBTX
}

// NewRoleRepository создаёт репозиторий графа ролей.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	role := &model.Role{}
	err := r.db.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения роли: %w", err)
	}
	return role, nil
}

func (r *roleRepo) GrantsForUser(ctx context.Context, userID int64) ([]rbac.Grant, error) {
	query := `
		SELECT r.name,
		       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		GROUP BY r.name
		ORDER BY r.name`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей пользователя: %w", err)
	}
	defer rows.Close()

	var grants []rbac.Grant
	for rows.Next() {
		var g rbac.Grant
		if err := rows.Scan(&g.Role, &g.Permissions); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *roleRepo) AddUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка назначения роли: %w", err)
	}
	return nil
}

func (r *roleRepo) ClearUserRoles(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("ошибка снятия ролей: %w", err)
	}
	return nil
}

func (r *roleRepo) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения имён ролей: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *roleRepo) UserIDsWithRole(ctx context.Context, roleName string) ([]int64, error) {
	return queryIDs(ctx, r.db, `
		SELECT ur.user_id
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE r.name = $1
		ORDER BY ur.user_id`, roleName)
}

// Пакет rbac — разрешения, роли и вычисление эффективного набора прав.
// Итоговый набор = объединение прав всех ролей пользователя без дубликатов.
// Набор вычисляется заново при каждом выпуске токена и не кэшируется.
package rbac

import "sort"

// Идентификаторы разрешений. Стабильные строки, попадают в claim "permissions".
const (
	CanVote                     = "CanVote"
	CanCreatePosition           = "CanCreatePosition"
	CanApplyForCandidacy        = "CanApplyForCandidacy"
	CanApproveCandidate         = "CanApproveCandidate"
	CanViewDashboard            = "CanViewDashboard"
	CanViewAdminStats           = "CanViewAdminStats"
	CanAccessCandidateDashboard = "CanAccessCandidateDashboard"
)

// Имена ролей, создаваемых при инициализации хранилища.
const (
	RoleAdmin     = "Admin"
	RoleVoter     = "Voter"
	RoleCandidate = "Candidate"
)

// AllPermissions — полный перечень разрешений системы.
var AllPermissions = []string{
	CanVote,
	CanCreatePosition,
	CanApplyForCandidacy,
	CanApproveCandidate,
	CanViewDashboard,
	CanViewAdminStats,
	CanAccessCandidateDashboard,
}

// DefaultRolePermissions — начальный граф ролей.
// Совпадает с миграцией 000002_seed и используется in-memory хранилищем.
var DefaultRolePermissions = map[string][]string{
	RoleAdmin: AllPermissions,
	RoleVoter: {
		CanVote,
		CanViewDashboard,
		CanApplyForCandidacy,
	},
	RoleCandidate: {
		CanVote,
		CanViewDashboard,
		CanAccessCandidateDashboard,
	},
}

// Grant — разрешения одной роли, назначенной пользователю.
type Grant struct {
	Role        string
	Permissions []string
}

// Resolve возвращает объединение разрешений всех грантов без дубликатов.
// Результат отсортирован, чтобы токены были детерминированными;
// вызывающий код должен использовать его только как множество.
// Пустой набор грантов даёт пустой (не nil) срез.
func Resolve(grants []Grant) []string {
	seen := make(map[string]struct{})
	for _, g := range grants {
		for _, p := range g.Permissions {
			seen[p] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for p := range seen {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// PermissionSet — множество разрешений из токена для проверок в транспортном слое.
type PermissionSet map[string]struct{}

// NewPermissionSet строит множество из списка разрешений.
func NewPermissionSet(perms []string) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has проверяет наличие разрешения.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// IsValidPermission проверяет, является ли строка известным разрешением.
func IsValidPermission(perm string) bool {
	for _, p := range AllPermissions {
		if p == perm {
			return true
		}
	}
	return false
}

package rbac

import (
	"slices"
	"testing"
)

func TestResolve(t *testing.T) {
	grant := func(role string) Grant {
		return Grant{Role: role, Permissions: DefaultRolePermissions[role]}
	}

	tests := []struct {
		name   string
		grants []Grant
		want   []string
	}{
		{
			name:   "без ролей — пустой набор",
			grants: nil,
			want:   []string{},
		},
		{
			name:   "Admin — все разрешения",
			grants: []Grant{grant(RoleAdmin)},
			want: []string{
				CanAccessCandidateDashboard, CanApplyForCandidacy, CanApproveCandidate,
				CanCreatePosition, CanViewAdminStats, CanViewDashboard, CanVote,
			},
		},
		{
			name:   "Voter",
			grants: []Grant{grant(RoleVoter)},
			want:   []string{CanApplyForCandidacy, CanViewDashboard, CanVote},
		},
		{
			name:   "Voter + Candidate — объединение без дубликатов",
			grants: []Grant{grant(RoleVoter), grant(RoleCandidate)},
			want: []string{
				CanAccessCandidateDashboard, CanApplyForCandidacy, CanViewDashboard, CanVote,
			},
		},
		{
			name: "повтор разрешения внутри одной роли",
			grants: []Grant{
				{Role: "Custom", Permissions: []string{CanVote, CanVote}},
			},
			want: []string{CanVote},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.grants)
			if got == nil {
				t.Fatal("Resolve() вернул nil, ожидается пустой срез")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Resolve() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestDefaultRolePermissions_Known(t *testing.T) {
	for role, perms := range DefaultRolePermissions {
		for _, p := range perms {
			if !IsValidPermission(p) {
				t.Errorf("роль %s содержит неизвестное разрешение %q", role, p)
			}
		}
	}
	if len(DefaultRolePermissions[RoleAdmin]) != len(AllPermissions) {
		t.Errorf("Admin: %d разрешений, хотели %d",
			len(DefaultRolePermissions[RoleAdmin]), len(AllPermissions))
	}
}

func TestPermissionSet_Has(t *testing.T) {
	set := NewPermissionSet([]string{CanVote, CanViewDashboard})

	tests := []struct {
		perm string
		want bool
	}{
		{CanVote, true},
		{CanViewDashboard, true},
		{CanApproveCandidate, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.perm, func(t *testing.T) {
			if got := set.Has(tt.perm); got != tt.want {
				t.Errorf("Has(%q) = %v, хотели %v", tt.perm, got, tt.want)
			}
		})
	}
}

func TestIsValidPermission(t *testing.T) {
	if !IsValidPermission(CanCreatePosition) {
		t.Error("CanCreatePosition должно быть допустимым")
	}
	if IsValidPermission("CanDoAnything") {
		t.Error("CanDoAnything не должно быть допустимым")
	}
}

package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member manage tags", role: RoleMember, action: ActionManageTags, allow: false},
		{name: "member analytics", role: RoleMember, action: ActionViewAnalytics, allow: false},
		{name: "moderator manage tags", role: RoleModerator, action: ActionManageTags, allow: true},
		{name: "moderator analytics", role: RoleModerator, action: ActionViewAnalytics, allow: true},
		{name: "moderator delete tags", role: RoleModerator, action: ActionDeleteTags, allow: false},
		{name: "moderator admin", role: RoleModerator, action: ActionAdmin, allow: false},
		{name: "admin delete tags", role: RoleAdmin, action: ActionDeleteTags, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionManageTags, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q", got)
	}
	if got := Normalize(""); got != RoleMember {
		t.Fatalf("Normalize(empty) = %q, want member", got)
	}
	if got := Normalize("superuser"); got != RoleMember {
		t.Fatalf("Normalize(superuser) = %q, want member", got)
	}
}

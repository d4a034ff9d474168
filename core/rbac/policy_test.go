package rbac

import "testing"

func TestDefaultRoles(t *testing.T) {
	p := MustNewPolicy(DefaultRoles)
	cases := []struct {
		roles []string
		perm  Permission
		want  bool
	}{
		{[]string{"admin"}, PermGuardsManage, true},
		{[]string{"supervisor"}, PermTeamsManage, true},
		{[]string{"supervisor"}, PermIncidentsUpdate, true},
		{[]string{"guard"}, PermIncidentsCreate, true},
		{[]string{"guard"}, PermTeamsManage, false},
		{[]string{"guard"}, PermGuardsManage, false},
		{[]string{"Guard "}, PermDashboardView, true},
		{[]string{"unknown"}, PermIncidentsView, false},
		{nil, PermIncidentsView, false},
		{[]string{"guard", "supervisor"}, PermGuardsManage, true},
	}
	for _, tc := range cases {
		if got := p.Allowed(tc.roles, tc.perm); got != tc.want {
			t.Fatalf("Allowed(%v, %s)=%v want %v", tc.roles, tc.perm, got, tc.want)
		}
	}
}

func TestReplaceDropsOldGrants(t *testing.T) {
	p := MustNewPolicy(DefaultRoles)
	if err := p.Replace([]Role{{Name: "guard", Permissions: []Permission{PermIncidentsView}}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if p.Allowed([]string{"guard"}, PermIncidentsCreate) {
		t.Fatalf("replaced policy still grants incidents.create")
	}
	if p.Allowed([]string{"admin"}, PermIncidentsView) {
		t.Fatalf("admin role should be gone after replace")
	}
	var nilPolicy *Policy
	if nilPolicy.Allowed([]string{"admin"}, PermIncidentsView) {
		t.Fatalf("nil policy must deny")
	}
}

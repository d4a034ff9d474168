package rbac

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIncidentsView   Permission = "incidents.view"
	PermIncidentsCreate Permission = "incidents.create"
	PermIncidentsUpdate Permission = "incidents.update"
	PermTeamsView       Permission = "teams.view"
	PermTeamsManage     Permission = "teams.manage"
	PermGuardsView      Permission = "guards.view"
	PermGuardsManage    Permission = "guards.manage"
	PermNotifications   Permission = "notifications.read"
	PermDashboardView   Permission = "dashboard.view"
)

var AllPermissions = []Permission{
	PermIncidentsView, PermIncidentsCreate, PermIncidentsUpdate,
	PermTeamsView, PermTeamsManage, PermGuardsView, PermGuardsManage,
	PermNotifications, PermDashboardView,
}

type Role struct {
	Name        string
	Permissions []Permission
}

// Patterns ending in "*" grant every permission sharing the prefix.
const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj)
`

var DefaultRoles = []Role{
	{Name: "admin", Permissions: []Permission{"*"}},
	{Name: "supervisor", Permissions: []Permission{"incidents.*", "teams.*", "guards.*", PermNotifications, PermDashboardView}},
	{Name: "guard", Permissions: []Permission{
		PermIncidentsView, PermIncidentsCreate, PermIncidentsUpdate,
		PermTeamsView, PermGuardsView, PermNotifications, PermDashboardView,
	}},
}

type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	p := &Policy{}
	if err := p.Replace(roles); err != nil {
		return nil, err
	}
	return p, nil
}

func MustNewPolicy(roles []Role) *Policy {
	p, err := NewPolicy(roles)
	if err != nil {
		panic(err)
	}
	return p
}

// Replace swaps the whole role set.
func (p *Policy) Replace(roles []Role) error {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, r := range roles {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			continue
		}
		for _, perm := range r.Permissions {
			if _, err := e.AddPolicy(name, string(perm)); err != nil {
				return fmt.Errorf("rbac add %s/%s: %w", name, perm, err)
			}
		}
	}
	p.mu.Lock()
	p.enforcer = e
	p.mu.Unlock()
	return nil
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || perm == "" {
		return false
	}
	p.mu.RLock()
	e := p.enforcer
	p.mu.RUnlock()
	if e == nil {
		return false
	}
	for _, role := range roles {
		ok, err := e.Enforce(strings.ToLower(strings.TrimSpace(role)), string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

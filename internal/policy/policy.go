// Package policy holds the role, app and domain tables that decide who may
// reach which application on which domain. The tables are plain data loaded
// from configuration, so adding a role or an app never needs new branches.
package policy

import (
	"net"
	"sort"
	"strings"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/models"
)

type AppInfo struct {
	App         string `json:"app"`
	Title       string `json:"title"`
	Description string `json:"description"`
	LoginCopy   string `json:"login_copy"`
}

type Policy struct {
	identityDomain    string
	rolePermissions   map[models.UserRole][]string
	appRoles          map[string]map[models.UserRole]struct{}
	returnPaths       map[string]string
	defaultReturnPath string
	domainApps        map[string][]string
	appInfo           map[string]AppInfo
}

func New(access config.AccessConfig, domains config.DomainsConfig) *Policy {
	p := &Policy{
		identityDomain:    NormalizeDomain(domains.Identity),
		rolePermissions:   make(map[models.UserRole][]string, len(access.RolePermissions)),
		appRoles:          make(map[string]map[models.UserRole]struct{}, len(access.AppRoles)),
		returnPaths:       make(map[string]string, len(access.AppReturnPaths)),
		defaultReturnPath: access.DefaultReturnPath,
		domainApps:        make(map[string][]string, len(domains.Allowed)),
		appInfo:           make(map[string]AppInfo, len(access.AppInfo)),
	}
	if p.defaultReturnPath == "" {
		p.defaultReturnPath = "/"
	}

	for role, perms := range access.RolePermissions {
		p.rolePermissions[models.UserRole(strings.ToLower(role))] = append([]string(nil), perms...)
	}
	for app, roles := range access.AppRoles {
		set := make(map[models.UserRole]struct{}, len(roles))
		for _, role := range roles {
			set[models.UserRole(strings.ToLower(strings.TrimSpace(role)))] = struct{}{}
		}
		p.appRoles[strings.ToLower(app)] = set
	}
	for app, path := range access.AppReturnPaths {
		p.returnPaths[strings.ToLower(app)] = path
	}
	for _, d := range domains.Allowed {
		name := NormalizeDomain(d.Name)
		if name == "" {
			continue
		}
		apps := make([]string, 0, len(d.Apps))
		for _, app := range d.Apps {
			if app = strings.ToLower(strings.TrimSpace(app)); app != "" {
				apps = append(apps, app)
			}
		}
		p.domainApps[name] = apps
	}
	for app, info := range access.AppInfo {
		app = strings.ToLower(app)
		p.appInfo[app] = AppInfo{
			App:         app,
			Title:       info.Title,
			Description: info.Description,
			LoginCopy:   info.LoginCopy,
		}
	}
	return p
}

func (p *Policy) IdentityDomain() string {
	return p.identityDomain
}

// PermissionsFor returns a copy of the permission set granted to role.
func (p *Policy) PermissionsFor(role models.UserRole) []string {
	perms := p.rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// AppsFor lists the apps role may open, sorted by name.
func (p *Policy) AppsFor(role models.UserRole) []string {
	apps := make([]string, 0, len(p.appRoles))
	for app, roles := range p.appRoles {
		if _, ok := roles[role]; ok {
			apps = append(apps, app)
		}
	}
	sort.Strings(apps)
	return apps
}

func (p *Policy) KnownApp(app string) bool {
	_, ok := p.appRoles[strings.ToLower(app)]
	return ok
}

func (p *Policy) CanAccessApp(role models.UserRole, app string) bool {
	roles, ok := p.appRoles[strings.ToLower(app)]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

func (p *Policy) IsAllowedDomain(domain string) bool {
	_, ok := p.domainApps[NormalizeDomain(domain)]
	return ok
}

// DomainApps returns the apps served on domain; empty for unknown domains.
func (p *Policy) DomainApps(domain string) []string {
	apps := p.domainApps[NormalizeDomain(domain)]
	out := make([]string, len(apps))
	copy(out, apps)
	return out
}

func (p *Policy) ReturnPath(app string) string {
	if path, ok := p.returnPaths[strings.ToLower(app)]; ok && path != "" {
		return path
	}
	return p.defaultReturnPath
}

func (p *Policy) AppInfo(app string) (AppInfo, bool) {
	info, ok := p.appInfo[strings.ToLower(app)]
	return info, ok
}

// NormalizeDomain lowercases a host and strips any scheme, port, path or
// trailing dot, so "https://Chat.AxionsLab.com:443/x" becomes "chat.axionslab.com".
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	return strings.TrimSuffix(d, ".")
}

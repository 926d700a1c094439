package policy

import (
	"github.com/wardenbot/warden/internal/capability"
)

// Resolve computes the actor's effective capability set. Precedence, highest
// first: admin status, custom user binding, default set plus enabled role
// unions plus inherited user binding. Disabled bindings are ignored.
// Admin-only capabilities are removed from non-admin results even when a
// binding lists them, so the returned set always agrees with Authorize.
//
// Resolve is pure and safe for unsynchronized concurrent use.
func Resolve(p *GuildPolicy, actor Actor, isAdmin bool) capability.Set {
	if isAdmin {
		return capability.FullSet()
	}

	base := p.DefaultCapabilities.Clone()
	for i := range p.RoleBindings {
		rb := &p.RoleBindings[i]
		if !rb.Enabled || !actor.HasRole(rb.RoleID) {
			continue
		}
		base = base.Union(rb.Capabilities)
	}

	ub := p.UserBindingFor(actor.UserID)
	if ub == nil || !ub.Enabled {
		return stripAdminOnly(base, p.AdminOnly)
	}
	if ub.Custom {
		return stripAdminOnly(ub.Capabilities.Clone(), p.AdminOnly)
	}
	return stripAdminOnly(base.Union(ub.Capabilities), p.AdminOnly)
}

// Authorize reports whether the actor may exercise cap under the policy.
func Authorize(p *GuildPolicy, actor Actor, isAdmin bool, c capability.Capability) bool {
	if isAdmin {
		return true
	}
	if p.AdminOnly.Has(c) {
		return false
	}
	return Resolve(p, actor, false).Has(c)
}

// stripAdminOnly removes admin-only capabilities from a non-admin's set. A
// binding may list them, but resolution never grants them.
func stripAdminOnly(s, adminOnly capability.Set) capability.Set {
	for c := range adminOnly {
		delete(s, c)
	}
	return s
}

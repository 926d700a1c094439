// Package policy holds the per-tenant permission model and the pure
// capability resolution logic.
package policy

import (
	"github.com/wardenbot/warden/internal/capability"
)

// RoleBinding grants a capability set to every holder of a guild role.
// DisplayName is a cached label for display only, never authoritative.
type RoleBinding struct {
	RoleID       string         `json:"role_id"`
	DisplayName  string         `json:"display_name,omitempty"`
	Capabilities capability.Set `json:"capabilities"`
	Enabled      bool           `json:"enabled"`
}

// UserBinding grants a capability set to a single guild member. Custom
// bindings replace the role-derived set at resolution time; inherited
// bindings extend it.
type UserBinding struct {
	UserID       string         `json:"user_id"`
	DisplayName  string         `json:"display_name,omitempty"`
	Capabilities capability.Set `json:"capabilities"`
	Enabled      bool           `json:"enabled"`
	Custom       bool           `json:"custom"`
}

// GuildPolicy is one tenant's layered permission policy. Role and user
// bindings are unique by their respective IDs; upserts replace.
type GuildPolicy struct {
	DefaultCapabilities capability.Set `json:"default_capabilities"`
	RoleBindings        []RoleBinding  `json:"role_bindings"`
	UserBindings        []UserBinding  `json:"user_bindings"`
	AdminOnly           capability.Set `json:"admin_only"`
}

// NewGuildPolicy returns the safe default policy for a fresh tenant.
func NewGuildPolicy() *GuildPolicy {
	return &GuildPolicy{
		DefaultCapabilities: capability.Defaults(),
		RoleBindings:        []RoleBinding{},
		UserBindings:        []UserBinding{},
		AdminOnly:           capability.AdminOnlyDefaults(),
	}
}

// RoleBindingFor returns the binding for roleID, or nil.
func (p *GuildPolicy) RoleBindingFor(roleID string) *RoleBinding {
	for i := range p.RoleBindings {
		if p.RoleBindings[i].RoleID == roleID {
			return &p.RoleBindings[i]
		}
	}
	return nil
}

// UserBindingFor returns the binding for userID, or nil.
func (p *GuildPolicy) UserBindingFor(userID string) *UserBinding {
	for i := range p.UserBindings {
		if p.UserBindings[i].UserID == userID {
			return &p.UserBindings[i]
		}
	}
	return nil
}

// UpsertRoleBinding replaces any existing binding for the role and enables
// it.
func (p *GuildPolicy) UpsertRoleBinding(roleID, displayName string, caps capability.Set) {
	binding := RoleBinding{
		RoleID:       roleID,
		DisplayName:  displayName,
		Capabilities: caps,
		Enabled:      true,
	}
	for i := range p.RoleBindings {
		if p.RoleBindings[i].RoleID == roleID {
			p.RoleBindings[i] = binding
			return
		}
	}
	p.RoleBindings = append(p.RoleBindings, binding)
}

// RemoveRoleBinding deletes the binding for roleID. Returns false when no
// binding existed.
func (p *GuildPolicy) RemoveRoleBinding(roleID string) bool {
	for i := range p.RoleBindings {
		if p.RoleBindings[i].RoleID == roleID {
			p.RoleBindings = append(p.RoleBindings[:i], p.RoleBindings[i+1:]...)
			return true
		}
	}
	return false
}

// UpsertUserBinding replaces any existing binding for the user and enables
// it.
func (p *GuildPolicy) UpsertUserBinding(userID, displayName string, caps capability.Set, custom bool) {
	binding := UserBinding{
		UserID:       userID,
		DisplayName:  displayName,
		Capabilities: caps,
		Enabled:      true,
		Custom:       custom,
	}
	for i := range p.UserBindings {
		if p.UserBindings[i].UserID == userID {
			p.UserBindings[i] = binding
			return
		}
	}
	p.UserBindings = append(p.UserBindings, binding)
}

// RemoveUserBinding deletes the binding for userID. Returns false when no
// binding existed.
func (p *GuildPolicy) RemoveUserBinding(userID string) bool {
	for i := range p.UserBindings {
		if p.UserBindings[i].UserID == userID {
			p.UserBindings = append(p.UserBindings[:i], p.UserBindings[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy, used to keep cached policies immutable.
func (p *GuildPolicy) Clone() *GuildPolicy {
	out := &GuildPolicy{
		DefaultCapabilities: p.DefaultCapabilities.Clone(),
		RoleBindings:        make([]RoleBinding, len(p.RoleBindings)),
		UserBindings:        make([]UserBinding, len(p.UserBindings)),
		AdminOnly:           p.AdminOnly.Clone(),
	}
	for i, rb := range p.RoleBindings {
		rb.Capabilities = rb.Capabilities.Clone()
		out.RoleBindings[i] = rb
	}
	for i, ub := range p.UserBindings {
		ub.Capabilities = ub.Capabilities.Clone()
		out.UserBindings[i] = ub
	}
	return out
}

// Actor carries the request-scoped facts about one guild member. Never
// persisted.
type Actor struct {
	UserID                string
	RoleIDs               []string
	IsOwner               bool
	HasElevatedPermission bool
}

// HasRole reports whether the actor holds roleID.
func (a Actor) HasRole(roleID string) bool {
	for _, id := range a.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

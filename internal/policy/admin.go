package policy

// IsAdmin classifies an actor as a tenant administrator. Guild owners and
// holders of the platform's elevated permission always qualify; otherwise
// the actor must hold at least one configured admin role. Pure, no I/O.
func IsAdmin(adminRoleIDs []string, actor Actor) bool {
	if actor.IsOwner || actor.HasElevatedPermission {
		return true
	}
	for _, id := range adminRoleIDs {
		if actor.HasRole(id) {
			return true
		}
	}
	return false
}

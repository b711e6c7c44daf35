package ledger

// Principal identifies an account interacting with the ledger. Values are
// opaque to the core (wallet addresses, user ids from the JWT subject, etc).
type Principal string

// Role is a named capability checked before mutating operations.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleMinter   Role = "MINTER"
	RoleVerifier Role = "VERIFIER"
)

// Gate answers "may principal P perform action A" and tracks the pause flag.
// It holds no other state and is only touched under the orchestrator lock.
type Gate struct {
	grants map[Role]map[Principal]bool
	paused bool
}

// NewGate creates the authorization table. The initializer holds ADMIN and
// MINTER from the start.
func NewGate(admin Principal) *Gate {
	g := &Gate{
		grants: map[Role]map[Principal]bool{
			RoleAdmin:    {},
			RoleMinter:   {},
			RoleVerifier: {},
		},
	}
	g.grants[RoleAdmin][admin] = true
	g.grants[RoleMinter][admin] = true
	return g
}

// HasRole reports whether p currently holds role.
func (g *Gate) HasRole(role Role, p Principal) bool {
	return g.grants[role][p]
}

// Grant adds role to p. Only ADMIN may grant.
func (g *Gate) Grant(caller Principal, role Role, p Principal) error {
	if !g.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if g.grants[role] == nil {
		g.grants[role] = map[Principal]bool{}
	}
	g.grants[role][p] = true
	return nil
}

// Revoke removes role from p. Only ADMIN may revoke.
func (g *Gate) Revoke(caller Principal, role Role, p Principal) error {
	if !g.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	delete(g.grants[role], p)
	return nil
}

// Pause stops all state-mutating lifecycle operations. ADMIN only.
func (g *Gate) Pause(caller Principal) error {
	if !g.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	g.paused = true
	return nil
}

// Unpause resumes normal operation. ADMIN only.
func (g *Gate) Unpause(caller Principal) error {
	if !g.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	g.paused = false
	return nil
}

// Paused reports the pause flag.
func (g *Gate) Paused() bool {
	return g.paused
}

func (g *Gate) requireActive() error {
	if g.paused {
		return ErrSystemPaused
	}
	return nil
}

func (g *Gate) require(role Role, p Principal) error {
	if !g.HasRole(role, p) {
		return ErrUnauthorized
	}
	return nil
}

package authx

import "context"

type Capability string

const (
	CapOrdersRead   Capability = "orders:read"
	CapOrdersWrite  Capability = "orders:write"
	CapOrdersNotify Capability = "orders:notify"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSupport Role = "support"
)

var roleCaps = map[Role][]Capability{
	RoleAdmin:   {CapOrdersRead, CapOrdersWrite, CapOrdersNotify},
	RoleSupport: {CapOrdersRead, CapOrdersNotify},
}

// Identity is the authenticated caller, resolved once per request.
type Identity struct {
	UserID string
	Email  string
	Role   Role
	caps   map[Capability]bool
}

func NewIdentity(userID, email string, role Role) *Identity {
	id := &Identity{UserID: userID, Email: email, Role: role, caps: map[Capability]bool{}}
	for _, c := range roleCaps[role] {
		id.caps[c] = true
	}
	return id
}

func (i *Identity) Can(c Capability) bool { return i != nil && i.caps[c] }

// Staff reports whether the caller holds any operator role.
func (i *Identity) Staff() bool { return i != nil && len(i.caps) > 0 }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

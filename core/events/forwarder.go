package events

import (
	"context"

	"github.com/artpar/traits/core/registry"
	"github.com/artpar/traits/core/role"
)

// Forwarder publishes registry outcomes to a bus.
type Forwarder struct {
	bus *Bus
	ctx context.Context
}

// NewForwarder creates a registry observer publishing to bus with ctx.
func NewForwarder(ctx context.Context, bus *Bus) *Forwarder {
	return &Forwarder{bus: bus, ctx: ctx}
}

// Applied publishes RoleApplied.
func (f *Forwarder) Applied(app registry.Application) {
	f.bus.Publish(f.ctx, Event{
		Name:  RoleApplied,
		Class: app.Base.Name(),
		Roles: names(app.Roles),
		Data: map[string]any{
			"result":   app.Result.Name(),
			"applied":  names(app.Applied),
			"modified": app.Modified,
		},
	})
}

// Rejected publishes RoleRejected.
func (f *Forwarder) Rejected(rej registry.Rejection) {
	f.bus.Publish(f.ctx, Event{
		Name:  RoleRejected,
		Class: rej.Base.Name(),
		Roles: names(rej.Roles),
		Data: map[string]any{
			"kind":    string(rej.Err.Kind),
			"methods": rej.Err.Methods,
			"error":   rej.Err.Error(),
		},
	})
}

var _ registry.Observer = (*Forwarder)(nil)

func names(roles []*role.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.String())
	}
	return out
}

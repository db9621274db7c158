package registry

import (
	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/role"
)

// Application describes a successful Apply.
type Application struct {
	// Base is the consumer class roles were applied to.
	Base *class.Class

	// Result is the derived class.
	Result *class.Class

	// Roles are the roles given to Apply, in argument order.
	Roles []*role.Role

	// Applied is the deduplicated union of the roles' applied closures.
	Applied []*role.Role

	// Modified lists the method names that received advice.
	Modified []string
}

// Rejection describes a failed Apply.
type Rejection struct {
	Base  *class.Class
	Roles []*role.Role
	Err   *role.CompositionError
}

// Observer is notified of Apply outcomes. Calls happen synchronously after
// the registry has been updated, outside its lock.
type Observer interface {
	Applied(app Application)
	Rejected(rej Rejection)
}

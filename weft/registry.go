package weft

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry is a bidirectional alias table between type tags on the wire and
// record type descriptions. It exists only to shorten tags; unresolved
// reverse lookups fall back to the type's own name. Registries are safe for
// concurrent use.
type Registry struct {
	byName *xsync.Map[string, *TypeSpec]
	names  *xsync.Map[*TypeSpec, string]
}

// DefaultRegistry is the process-wide registry used when an engine or codec
// is built without an explicit one. Prefer passing a Registry explicitly;
// the default exists for convenience.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty alias table.
func NewRegistry() *Registry {
	return &Registry{
		byName: xsync.NewMap[string, *TypeSpec](),
		names:  xsync.NewMap[*TypeSpec, string](),
	}
}

// Register maps an alias to a record type in both directions. Registering
// the same alias again replaces the earlier mapping.
func (r *Registry) Register(alias string, ts *TypeSpec) {
	r.byName.Store(alias, ts)
	r.names.Store(ts, alias)
}

// Lookup resolves an alias to a record type.
func (r *Registry) Lookup(alias string) (*TypeSpec, bool) {
	return r.byName.Load(alias)
}

// NameFor returns the alias for a record type, falling back to the type's
// fully qualified name when no alias was registered.
func (r *Registry) NameFor(ts *TypeSpec) string {
	if name, ok := r.names.Load(ts); ok {
		return name
	}
	return ts.Name
}

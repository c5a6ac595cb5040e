package dispatch

// Reserved interface ids. Both are registered by New before anything else.
const (
	IntrospectableID = 0
	PropertiesID     = 1
)

// IfaceToken is a handle to a registered interface, bound to the payload
// type T that objects implementing it must carry.
type IfaceToken[T any] struct {
	id int
}

// ID returns the interface id.
func (t IfaceToken[T]) ID() int { return t.id }

// Introspectable returns the built-in Introspectable token for any payload type.
func Introspectable[T any]() IfaceToken[T] { return IfaceToken[T]{id: IntrospectableID} }

// Properties returns the built-in Properties token for any payload type.
func Properties[T any]() IfaceToken[T] { return IfaceToken[T]{id: PropertiesID} }

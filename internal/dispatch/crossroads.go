package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/godbus/dbus/v5"
)

// Crossroads owns the object table and the interface registry and runs one
// request/response cycle per HandleMessage call.
//
// A Crossroads is not safe for concurrent use. Handlers receive it and may
// mutate it freely while they run.
type Crossroads struct {
	table    *objectTable
	registry Registry
	logger   *slog.Logger

	addStandardIfaces bool
}

// Option configures a Crossroads.
type Option func(*Crossroads)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cr *Crossroads) {
		if l != nil {
			cr.logger = l
		}
	}
}

// WithoutStandardInterfaces disables automatic Introspectable/Properties
// membership on insert.
func WithoutStandardInterfaces() Option {
	return func(cr *Crossroads) { cr.addStandardIfaces = false }
}

// New creates a Crossroads with the built-in Introspectable (id 0) and
// Properties (id 1) interfaces registered.
func New(opts ...Option) *Crossroads {
	cr := &Crossroads{
		table:             newObjectTable(),
		logger:            slog.Default(),
		addStandardIfaces: true,
	}
	for _, opt := range opts {
		opt(cr)
	}

	if id := cr.registry.push(introspectableDesc()); id != IntrospectableID {
		panic("dispatch: Introspectable must be interface 0")
	}
	if id := cr.registry.push(propertiesDesc()); id != PropertiesID {
		panic("dispatch: Properties must be interface 1")
	}
	return cr
}

// SetAddStandardInterfaces toggles automatic standard interface membership
// for subsequent inserts.
func (cr *Crossroads) SetAddStandardInterfaces(enable bool) {
	cr.addStandardIfaces = enable
}

// Registry exposes the interface registry.
func (cr *Crossroads) Registry() *Registry { return &cr.registry }

// UnregisterInterface tombstones interface id. Objects keep the id in their
// set but lookups skip it. The built-in ids cannot be removed.
func (cr *Crossroads) UnregisterInterface(id int) bool {
	if id == IntrospectableID || id == PropertiesID {
		return false
	}
	return cr.registry.remove(id)
}

// Insert places an object at path, replacing any object already there. The
// object implements exactly the interfaces of tokens, plus Introspectable
// and (if any of them declares a property) Properties when standard
// interfaces are enabled. A token registered for another payload type,
// such as one taken from a different Crossroads, yields ErrPayloadMismatch.
func Insert[T any](cr *Crossroads, path dbus.ObjectPath, tokens []IfaceToken[T], data T) error {
	if !path.IsValid() {
		return ErrInvalidPath
	}
	want := reflect.TypeFor[T]()
	ifaces := make(map[int]struct{}, len(tokens)+2)
	for _, t := range tokens {
		if d := cr.registry.get(t.id); d != nil && d.payload != nil && d.payload != want {
			return fmt.Errorf("%w: %s holds %s, not %s", ErrPayloadMismatch, d.name, d.payload, want)
		}
		ifaces[t.id] = struct{}{}
	}
	if cr.addStandardIfaces {
		ifaces[IntrospectableID] = struct{}{}
		for id := range ifaces {
			if cr.registry.HasProperties(id) {
				ifaces[PropertiesID] = struct{}{}
				break
			}
		}
	}
	d := new(T)
	*d = data
	cr.table.put(path, &object{ifaces: ifaces, data: d})
	cr.logger.Debug("object inserted", "path", path, "interfaces", len(ifaces))
	return nil
}

// Data returns the payload at path if there is an object there and its
// payload is a T. Otherwise it returns false.
func Data[T any](cr *Crossroads, path dbus.ObjectPath) (*T, bool) {
	obj, ok := cr.table.get(path)
	if !ok {
		return nil, false
	}
	d, ok := obj.data.(*T)
	return d, ok
}

// Remove deletes the object at path.
func (cr *Crossroads) Remove(path dbus.ObjectPath) bool {
	return cr.table.remove(path)
}

// Has reports whether an object exists at path.
func (cr *Crossroads) Has(path dbus.ObjectPath) bool {
	_, ok := cr.table.get(path)
	return ok
}

// Paths returns every object path in sorted order.
func (cr *Crossroads) Paths() []dbus.ObjectPath {
	return cr.table.paths()
}

// Interfaces returns the sorted names of the live interfaces at path.
func (cr *Crossroads) Interfaces(path dbus.ObjectPath) []string {
	obj, ok := cr.table.get(path)
	if !ok {
		return nil
	}
	var out []string
	for _, id := range obj.ids() {
		if name, ok := cr.registry.Name(id); ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Children lists the objects below path as remainders after "path/".
// Objects nested more than one level down keep their inner separators;
// callers that need immediate children only must cut at the first '/'.
func (cr *Crossroads) Children(path dbus.ObjectPath) []string {
	return cr.table.descendants(path)
}

// FindInterface resolves the interface id governing a call to method on
// path, with iface optional ("").
func (cr *Crossroads) FindInterface(path dbus.ObjectPath, iface, method string) (int, error) {
	obj, ok := cr.table.get(path)
	if !ok {
		return 0, NoPath(path)
	}
	return cr.registry.FindToken(iface, method, obj.ids())
}

// HandleMessage runs one full request/response cycle for msg and flushes
// the outcome through s.
//
// It returns ErrNotMethodCall for messages that cannot be routed (nothing is
// sent), the *MethodError when dispatch ended in an error reply, or an error
// wrapping ErrSendFailed when s rejected a message. A handler that defers
// its reply makes HandleMessage return nil without sending anything.
func (cr *Crossroads) HandleMessage(msg *dbus.Message, s Sender) error {
	ctx, ok := NewContext(msg)
	if !ok {
		cr.logger.Debug("message dropped", "type", msgType(msg))
		return ErrNotMethodCall
	}

	var co *checkout
	if ctx.Check(func(ctx *Context) error {
		id, err := cr.FindInterface(ctx.Path(), ctx.Interface(), ctx.Method())
		if err == nil {
			co, err = cr.registry.takeMethod(id, ctx.Method())
		}
		return err
	}) != nil {
		cr.logger.Debug("dispatch aborted",
			"path", ctx.Path(),
			"interface", ctx.Interface(),
			"member", ctx.Method(),
			"error", ctx.Err(),
		)
		if err := ctx.Flush(s); err != nil {
			return err
		}
		return ctx.Err()
	}

	ctx.resolveInterface(co.desc.name)
	out := cr.invoke(co, ctx)
	if out == nil {
		cr.logger.Debug("reply deferred", "path", ctx.Path(), "member", ctx.Method())
		return nil
	}
	if err := out.Flush(s); err != nil {
		return err
	}
	return out.Err()
}

// invoke runs a checked-out handler and always gives it back, including
// when the handler panics.
func (cr *Crossroads) invoke(co *checkout, ctx *Context) *Context {
	defer cr.registry.giveMethod(co)
	return co.handler(ctx, cr)
}

func msgType(msg *dbus.Message) int {
	if msg == nil {
		return -1
	}
	return int(msg.Type)
}

// IsDispatchError reports whether err came from dispatch itself rather
// than from the transport.
func IsDispatchError(err error) bool {
	var me *MethodError
	return errors.As(err, &me) || errors.Is(err, ErrNotMethodCall)
}

package dispatch

import "github.com/godbus/dbus/v5"

// PropContext is the state of one property operation serviced by the
// built-in Properties interface. It is installed on the Context only while
// a getter or setter runs.
type PropContext struct {
	Path      dbus.ObjectPath
	Interface string
	Name      string

	// Invalidated lists further properties a setter knows are now stale.
	// They are announced in the PropertiesChanged signal without values.
	Invalidated []string
}

// Invalidate marks another property of the same interface as changed.
func (pc *PropContext) Invalidate(name string) {
	for _, n := range pc.Invalidated {
		if n == name {
			return
		}
	}
	pc.Invalidated = append(pc.Invalidated, name)
}

// withProp installs a fresh PropContext for name, runs fn and takes the
// context back, whatever fn did with it in between.
func withProp[R any](ctx *Context, iface, name string, fn func() (R, error)) (R, *PropContext, error) {
	ctx.GivePropContext(&PropContext{Path: ctx.Path(), Interface: iface, Name: name})
	defer func() { ctx.prop = nil }()
	out, err := fn()
	var pc *PropContext
	if ctx.prop != nil {
		pc = ctx.TakePropContext()
	}
	return out, pc, err
}

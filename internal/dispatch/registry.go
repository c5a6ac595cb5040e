package dispatch

import (
	"reflect"
	"slices"
)

// Arg is a named, typed argument of a method or signal.
type Arg struct {
	Name      string
	Signature string
}

// Args builds an argument list from alternating name/signature pairs:
//
//	Args("a", "i", "b", "i")
func Args(pairs ...string) []Arg {
	if len(pairs)%2 != 0 {
		panic("dispatch: Args needs name/signature pairs")
	}
	out := make([]Arg, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, Arg{Name: pairs[i], Signature: pairs[i+1]})
	}
	return out
}

// Handler services one checked-out method call. It returns the Context to
// flush now, or nil when the reply is deferred and will be flushed by the
// handler's owner later.
type Handler func(ctx *Context, cr *Crossroads) *Context

type propGetter func(ctx *Context, cr *Crossroads) (any, error)
type propSetter func(ctx *Context, cr *Crossroads, value any) error

type methodSlot struct {
	args    []Arg
	returns []Arg
	handler Handler // nil while checked out
}

type propDesc struct {
	signature    string
	get          propGetter
	set          propSetter
	emitsChanged bool
}

type signalDesc struct {
	name string
	args []Arg
}

type ifaceDesc struct {
	name        string
	payload     reflect.Type // nil when usable with any payload
	methods     map[string]*methodSlot
	methodOrder []string
	props       map[string]*propDesc
	propOrder   []string
	signals     []signalDesc
}

func newIfaceDesc(name string, payload reflect.Type) *ifaceDesc {
	return &ifaceDesc{
		name:    name,
		payload: payload,
		methods: make(map[string]*methodSlot),
		props:   make(map[string]*propDesc),
	}
}

// Registry maps interface ids to their declarations and method handlers.
// Ids are slice indexes; unregistered ids are tombstoned, never reused.
type Registry struct {
	ifaces []*ifaceDesc
}

func (r *Registry) push(d *ifaceDesc) int {
	r.ifaces = append(r.ifaces, d)
	return len(r.ifaces) - 1
}

func (r *Registry) get(id int) *ifaceDesc {
	if id < 0 || id >= len(r.ifaces) {
		return nil
	}
	return r.ifaces[id]
}

func (r *Registry) remove(id int) bool {
	if r.get(id) == nil {
		return false
	}
	r.ifaces[id] = nil
	return true
}

// Name returns the registered name of interface id.
func (r *Registry) Name(id int) (string, bool) {
	d := r.get(id)
	if d == nil {
		return "", false
	}
	return d.name, true
}

// HasProperties reports whether interface id declares at least one property.
func (r *Registry) HasProperties(id int) bool {
	d := r.get(id)
	return d != nil && len(d.props) > 0
}

// FindToken picks the interface among ids that governs a call.
//
// With a name, the candidate registered under that name wins, otherwise
// UnknownInterface. Without one, exactly one candidate must declare method;
// none or several is reported as UnknownMethod.
func (r *Registry) FindToken(iface, method string, ids []int) (int, error) {
	if iface != "" {
		for _, id := range ids {
			if d := r.get(id); d != nil && d.name == iface {
				return id, nil
			}
		}
		return 0, UnknownInterface(iface)
	}

	found := -1
	for _, id := range ids {
		d := r.get(id)
		if d == nil {
			continue
		}
		if _, ok := d.methods[method]; !ok {
			continue
		}
		if found >= 0 {
			return 0, UnknownMethod(method)
		}
		found = id
	}
	if found < 0 {
		return 0, UnknownMethod(method)
	}
	return found, nil
}

// checkout is a handler removed from its slot for one invocation.
type checkout struct {
	id      int
	method  string
	desc    *ifaceDesc
	slot    *methodSlot
	handler Handler
}

// takeMethod removes the handler for (id, method). A checked-out slot is
// indistinguishable from a missing one.
func (r *Registry) takeMethod(id int, method string) (*checkout, error) {
	d := r.get(id)
	if d == nil {
		return nil, UnknownMethod(method)
	}
	slot, ok := d.methods[method]
	if !ok || slot.handler == nil {
		return nil, UnknownMethod(method)
	}
	c := &checkout{id: id, method: method, desc: d, slot: slot, handler: slot.handler}
	slot.handler = nil
	return c, nil
}

// giveMethod restores a checked-out handler. If the interface or the slot
// was removed or replaced meanwhile, the handler is discarded.
func (r *Registry) giveMethod(c *checkout) {
	if r.get(c.id) != c.desc {
		return
	}
	if c.desc.methods[c.method] != c.slot || c.slot.handler != nil {
		return
	}
	c.slot.handler = c.handler
}

// CheckedOut lists "interface.method" for every slot currently checked out,
// sorted. Outside of a running handler this is empty.
func (r *Registry) CheckedOut() []string {
	var out []string
	for _, d := range r.ifaces {
		if d == nil {
			continue
		}
		for _, name := range d.methodOrder {
			if d.methods[name].handler == nil {
				out = append(out, d.name+"."+name)
			}
		}
	}
	slices.Sort(out)
	return out
}

package dispatch

import (
	"encoding/xml"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Standard interface names.
const (
	IntrospectableName = "org.freedesktop.DBus.Introspectable"
	PropertiesName     = "org.freedesktop.DBus.Properties"
)

const emitsChangedAnnotation = "org.freedesktop.DBus.Property.EmitsChangedSignal"

func introspectableDesc() *ifaceDesc {
	d := newIfaceDesc(IntrospectableName, nil)
	returns := Args("xml_data", "s")
	d.addMethod("Introspect", nil, returns, crossroadsHandler(nil, func(ctx *Context, cr *Crossroads, _ []any) ([]any, error) {
		doc, err := cr.Introspect(ctx.Path())
		if err != nil {
			return nil, err
		}
		return []any{doc}, nil
	}))
	return d
}

// Introspect renders the introspection document for the object at path.
func (cr *Crossroads) Introspect(path dbus.ObjectPath) (string, error) {
	node, err := cr.IntrospectNode(path)
	if err != nil {
		return "", err
	}
	b, err := xml.MarshalIndent(node, "", "  ")
	if err != nil {
		return "", Failed("marshal introspection: %v", err)
	}
	return introspect.IntrospectDeclarationString + string(b) + "\n", nil
}

// IntrospectNode describes the object at path: its live interfaces sorted
// by name and the names of its immediate children.
func (cr *Crossroads) IntrospectNode(path dbus.ObjectPath) (*introspect.Node, error) {
	obj, ok := cr.table.get(path)
	if !ok {
		return nil, NoPath(path)
	}
	node := &introspect.Node{}
	for _, id := range obj.ids() {
		if d := cr.registry.get(id); d != nil {
			node.Interfaces = append(node.Interfaces, d.introspect())
		}
	}
	slices.SortFunc(node.Interfaces, func(a, b introspect.Interface) int {
		return strings.Compare(a.Name, b.Name)
	})
	for _, name := range childNames(cr.table.descendants(path)) {
		node.Children = append(node.Children, introspect.Node{Name: name})
	}
	return node, nil
}

func childNames(descendants []string) []string {
	seen := make(map[string]bool, len(descendants))
	var out []string
	for _, rest := range descendants {
		first, _, _ := strings.Cut(rest, "/")
		if !seen[first] {
			seen[first] = true
			out = append(out, first)
		}
	}
	slices.Sort(out)
	return out
}

func (d *ifaceDesc) introspect() introspect.Interface {
	out := introspect.Interface{Name: d.name}
	for _, name := range d.methodOrder {
		slot := d.methods[name]
		m := introspect.Method{Name: name}
		for _, a := range slot.args {
			m.Args = append(m.Args, introspect.Arg{Name: a.Name, Type: a.Signature, Direction: "in"})
		}
		for _, a := range slot.returns {
			m.Args = append(m.Args, introspect.Arg{Name: a.Name, Type: a.Signature, Direction: "out"})
		}
		out.Methods = append(out.Methods, m)
	}
	for _, sig := range d.signals {
		s := introspect.Signal{Name: sig.name}
		for _, a := range sig.args {
			s.Args = append(s.Args, introspect.Arg{Name: a.Name, Type: a.Signature})
		}
		out.Signals = append(out.Signals, s)
	}
	for _, name := range d.propOrder {
		p := d.props[name]
		prop := introspect.Property{Name: name, Type: p.signature, Access: p.access()}
		if !p.emitsChanged {
			prop.Annotations = []introspect.Annotation{{Name: emitsChangedAnnotation, Value: "false"}}
		}
		out.Properties = append(out.Properties, prop)
	}
	return out
}

func (p *propDesc) access() string {
	switch {
	case p.get != nil && p.set != nil:
		return "readwrite"
	case p.set != nil:
		return "write"
	default:
		return "read"
	}
}

func propertiesDesc() *ifaceDesc {
	d := newIfaceDesc(PropertiesName, nil)

	getArgs := Args("interface_name", "s", "property_name", "s")
	d.addMethod("Get", getArgs, Args("value", "v"), crossroadsHandler(getArgs, func(ctx *Context, cr *Crossroads, body []any) ([]any, error) {
		iface, name := body[0].(string), body[1].(string)
		v, err := cr.getProperty(ctx, iface, name)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}))

	getAllArgs := Args("interface_name", "s")
	d.addMethod("GetAll", getAllArgs, Args("props", "a{sv}"), crossroadsHandler(getAllArgs, func(ctx *Context, cr *Crossroads, body []any) ([]any, error) {
		all, err := cr.getAllProperties(ctx, body[0].(string))
		if err != nil {
			return nil, err
		}
		return []any{all}, nil
	}))

	setArgs := Args("interface_name", "s", "property_name", "s", "value", "v")
	d.addMethod("Set", setArgs, nil, crossroadsHandler(setArgs, func(ctx *Context, cr *Crossroads, body []any) ([]any, error) {
		iface, name := body[0].(string), body[1].(string)
		return nil, cr.setProperty(ctx, iface, name, body[2].(dbus.Variant))
	}))

	d.signals = append(d.signals, signalDesc{
		name: "PropertiesChanged",
		args: Args("interface_name", "s", "changed_properties", "a{sv}", "invalidated_properties", "as"),
	})
	return d
}

func (cr *Crossroads) propertyIface(path dbus.ObjectPath, iface string) (*ifaceDesc, error) {
	if iface == "" {
		return nil, UnknownInterface(iface)
	}
	id, err := cr.FindInterface(path, iface, "")
	if err != nil {
		return nil, err
	}
	return cr.registry.get(id), nil
}

func (cr *Crossroads) lookupProperty(path dbus.ObjectPath, iface, name string) (*propDesc, error) {
	d, err := cr.propertyIface(path, iface)
	if err != nil {
		return nil, err
	}
	p, ok := d.props[name]
	if !ok {
		return nil, UnknownProperty(name)
	}
	return p, nil
}

func (cr *Crossroads) getProperty(ctx *Context, iface, name string) (dbus.Variant, error) {
	p, err := cr.lookupProperty(ctx.Path(), iface, name)
	if err != nil {
		return dbus.Variant{}, err
	}
	if p.get == nil {
		return dbus.Variant{}, Failed("Property %q is write only", name)
	}
	v, _, err := withProp(ctx, iface, name, func() (any, error) { return p.get(ctx, cr) })
	if err != nil {
		return dbus.Variant{}, err
	}
	return makeVariant(v, p.signature), nil
}

func (cr *Crossroads) getAllProperties(ctx *Context, iface string) (map[string]dbus.Variant, error) {
	d, err := cr.propertyIface(ctx.Path(), iface)
	if err != nil {
		return nil, err
	}
	out := make(map[string]dbus.Variant, len(d.props))
	for _, name := range d.propOrder {
		p := d.props[name]
		if p.get == nil {
			continue
		}
		v, _, err := withProp(ctx, iface, name, func() (any, error) { return p.get(ctx, cr) })
		if err != nil {
			return nil, err
		}
		out[name] = makeVariant(v, p.signature)
	}
	return out, nil
}

func (cr *Crossroads) setProperty(ctx *Context, iface, name string, value dbus.Variant) error {
	p, err := cr.lookupProperty(ctx.Path(), iface, name)
	if err != nil {
		return err
	}
	if p.set == nil {
		return PropertyReadOnly(name)
	}
	if got := value.Signature().String(); got != p.signature {
		return InvalidArgs("property %q has type %q, got %q", name, p.signature, got)
	}
	_, pc, err := withProp(ctx, iface, name, func() (struct{}, error) {
		return struct{}{}, p.set(ctx, cr, value.Value())
	})
	if err != nil {
		return err
	}
	if !p.emitsChanged {
		return nil
	}
	invalidated := []string{}
	if pc != nil {
		invalidated = append(invalidated, pc.Invalidated...)
	}
	ctx.PushMessage(NewSignal(ctx.Path(), PropertiesName, "PropertiesChanged",
		iface, map[string]dbus.Variant{name: value}, invalidated))
	return nil
}

func makeVariant(v any, signature string) dbus.Variant {
	if sv, ok := v.(dbus.Variant); ok {
		return sv
	}
	sig, err := dbus.ParseSignature(signature)
	if err != nil {
		return dbus.MakeVariant(v)
	}
	return dbus.MakeVariantWithSignature(v, sig)
}

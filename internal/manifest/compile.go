package manifest

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/ir"
)

// CompileString compiles CUE source text. filename is used in positions.
func CompileString(filename, src string) (*Manifest, []error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// Compile turns a CUE value into a Manifest, collecting every problem it
// finds. The manifest is returned alongside errors with whatever compiled
// cleanly.
func Compile(v cue.Value) (*Manifest, []error) {
	if err := v.Validate(); err != nil {
		return nil, []error{formatCUEError(err, "")}
	}

	c := &compiler{}
	m := &Manifest{CUEValue: v}

	c.fields(v, "interfaces", func(name string, iv cue.Value) {
		if iface, ok := c.iface(name, iv); ok {
			m.Interfaces = append(m.Interfaces, iface)
		}
	})
	slices.SortFunc(m.Interfaces, func(a, b Interface) int { return strings.Compare(a.Name, b.Name) })

	c.fields(v, "objects", func(path string, ov cue.Value) {
		if obj, ok := c.object(m, path, ov); ok {
			m.Objects = append(m.Objects, obj)
		}
	})
	slices.SortFunc(m.Objects, func(a, b Object) int { return strings.Compare(a.Path, b.Path) })

	if len(m.Interfaces) == 0 && len(m.Objects) == 0 && len(c.errs) == 0 {
		c.fail(ErrCodeEmpty, "", v, "no interfaces or objects declared")
	}
	return m, c.errs
}

type compiler struct {
	errs []error
}

func (c *compiler) fail(code, field string, pos cue.Value, format string, args ...any) {
	c.errs = append(c.errs, &LoadError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos.Pos(),
	})
}

func (c *compiler) cueErr(err error, field string) {
	c.errs = append(c.errs, formatCUEError(err, field))
}

// fields calls fn for each regular field of v.path, if present.
func (c *compiler) fields(v cue.Value, path string, fn func(label string, fv cue.Value)) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return
	}
	iter, err := fv.Fields()
	if err != nil {
		c.cueErr(err, path)
		return
	}
	for iter.Next() {
		fn(iter.Selector().Unquoted(), iter.Value())
	}
}

func (c *compiler) iface(name string, v cue.Value) (Interface, bool) {
	field := "interfaces." + name
	if !validDottedName(name) {
		c.fail(ErrCodeInterfaceName, field, v, "invalid interface name %q", name)
		return Interface{}, false
	}
	if name == dispatch.IntrospectableName || name == dispatch.PropertiesName {
		c.fail(ErrCodeInterfaceName, field, v, "%s is provided by the dispatcher", name)
		return Interface{}, false
	}

	before := len(c.errs)
	iface := Interface{Name: name}

	c.fields(v, "signals", func(sname string, sv cue.Value) {
		sfield := field + ".signals." + sname
		if !validMemberName(sname) {
			c.fail(ErrCodeMemberName, sfield, sv, "invalid signal name %q", sname)
			return
		}
		iface.Signals = append(iface.Signals, Signal{Name: sname, Args: c.args(sfield+".args", sv.LookupPath(cue.ParsePath("args")))})
	})

	c.fields(v, "methods", func(mname string, mv cue.Value) {
		if m, ok := c.method(&iface, field+".methods."+mname, mname, mv); ok {
			iface.Methods = append(iface.Methods, m)
		}
	})

	c.fields(v, "properties", func(pname string, pv cue.Value) {
		if p, ok := c.property(field+".properties."+pname, pname, pv); ok {
			iface.Properties = append(iface.Properties, p)
		}
	})

	return iface, len(c.errs) == before
}

func (c *compiler) args(field string, v cue.Value) []Arg {
	if !v.Exists() {
		return nil
	}
	iter, err := v.List()
	if err != nil {
		c.cueErr(err, field)
		return nil
	}
	var args []Arg
	for i := 0; iter.Next(); i++ {
		av := iter.Value()
		afield := fmt.Sprintf("%s[%d]", field, i)
		arg := Arg{}
		if nv := av.LookupPath(cue.ParsePath("name")); nv.Exists() {
			if arg.Name, err = nv.String(); err != nil {
				c.cueErr(err, afield+".name")
				continue
			}
		}
		if arg.Type, err = c.requiredString(av, "type", afield); err != nil {
			continue
		}
		if c.checkType(afield+".type", av, arg.Type) {
			args = append(args, arg)
		}
	}
	return args
}

// checkType accepts one complete type that has a Go mapping.
func (c *compiler) checkType(field string, pos cue.Value, sig string) bool {
	types, err := ir.SplitSignature(sig)
	if err != nil {
		c.fail(ErrCodeType, field, pos, "%v", err)
		return false
	}
	if len(types) != 1 {
		c.fail(ErrCodeType, field, pos, "%q is not a single complete type", sig)
		return false
	}
	if _, err := ir.GoType(sig); err != nil {
		c.fail(ErrCodeType, field, pos, "%q: struct types are not supported", sig)
		return false
	}
	return true
}

func (c *compiler) requiredString(v cue.Value, name, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		err := fmt.Errorf("%s is required", name)
		c.fail(ErrCodeGeneric, field+"."+name, v, "%s is required", name)
		return "", err
	}
	s, err := sv.String()
	if err != nil {
		c.cueErr(err, field+"."+name)
		return "", err
	}
	return s, nil
}

func (c *compiler) method(iface *Interface, field, name string, v cue.Value) (Method, bool) {
	if !validMemberName(name) {
		c.fail(ErrCodeMemberName, field, v, "invalid method name %q", name)
		return Method{}, false
	}
	before := len(c.errs)
	m := Method{
		Name:    name,
		Args:    c.args(field+".args", v.LookupPath(cue.ParsePath("args"))),
		Returns: c.args(field+".returns", v.LookupPath(cue.ParsePath("returns"))),
	}
	impl, err := c.requiredString(v, "impl", field)
	if err != nil {
		return Method{}, false
	}
	m.Impl = impl

	if rv := v.LookupPath(cue.ParsePath("reply")); rv.Exists() {
		reply, err := toGo(rv)
		if err != nil {
			c.cueErr(err, field+".reply")
		} else if list, ok := reply.([]any); ok {
			m.Reply = list
		} else {
			c.fail(ErrCodeImpl, field+".reply", rv, "reply must be a list")
		}
	}
	if ev := v.LookupPath(cue.ParsePath("error")); ev.Exists() {
		m.Error = &ErrorReply{}
		if nv := ev.LookupPath(cue.ParsePath("name")); nv.Exists() {
			if m.Error.Name, err = nv.String(); err != nil {
				c.cueErr(err, field+".error.name")
			}
		}
		if mv := ev.LookupPath(cue.ParsePath("message")); mv.Exists() {
			if m.Error.Message, err = mv.String(); err != nil {
				c.cueErr(err, field+".error.message")
			}
		}
	}
	if sv := v.LookupPath(cue.ParsePath("signal")); sv.Exists() {
		if m.Signal, err = sv.String(); err != nil {
			c.cueErr(err, field+".signal")
		}
	}
	if len(c.errs) != before {
		return Method{}, false
	}

	c.checkImpl(iface, field, v, &m)
	return m, len(c.errs) == before
}

func (c *compiler) checkImpl(iface *Interface, field string, v cue.Value, m *Method) {
	if m.Reply != nil && m.Impl != ImplConst {
		c.fail(ErrCodeImpl, field+".reply", v, "reply is only used by impl %q", ImplConst)
	}
	if m.Error != nil && m.Impl != ImplFail {
		c.fail(ErrCodeImpl, field+".error", v, "error is only used by impl %q", ImplFail)
	}
	if m.Signal != "" && m.Impl != ImplEmit {
		c.fail(ErrCodeImpl, field+".signal", v, "signal is only used by impl %q", ImplEmit)
	}

	args, returns := Signature(m.Args), Signature(m.Returns)
	switch m.Impl {
	case ImplEcho:
		if args != returns {
			c.fail(ErrCodeImpl, field, v, "echo returns %q must equal args %q", returns, args)
		}
	case ImplSum:
		for _, a := range m.Args {
			if !isInteger(a.Type) {
				c.fail(ErrCodeImpl, field, v, "sum arg %q has non-integer type %q", a.Name, a.Type)
			}
		}
		if len(m.Returns) != 1 || !isInteger(m.Returns[0].Type) {
			c.fail(ErrCodeImpl, field, v, "sum must return exactly one integer")
		}
	case ImplConst:
		if _, err := ir.ToBody(returns, m.Reply); err != nil {
			c.fail(ErrCodeImpl, field+".reply", v, "%v", err)
		}
	case ImplFail:
		if m.Error != nil && m.Error.Name != "" && !validDottedName(m.Error.Name) {
			c.fail(ErrCodeImpl, field+".error.name", v, "invalid error name %q", m.Error.Name)
		}
	case ImplEmit:
		sig, ok := iface.Signal(m.Signal)
		switch {
		case m.Signal == "":
			c.fail(ErrCodeImpl, field, v, "emit needs a signal")
		case !ok:
			c.fail(ErrCodeImpl, field+".signal", v, "signal %q is not declared on %s", m.Signal, iface.Name)
		case Signature(sig.Args) != args:
			c.fail(ErrCodeImpl, field, v, "signal %s args %q must equal method args %q", m.Signal, Signature(sig.Args), args)
		}
		if len(m.Returns) != 0 {
			c.fail(ErrCodeImpl, field, v, "emit methods return nothing")
		}
	default:
		c.fail(ErrCodeImpl, field+".impl", v, "unknown impl %q", m.Impl)
	}
}

func isInteger(sig string) bool {
	switch sig {
	case "y", "n", "q", "i", "u", "x", "t":
		return true
	}
	return false
}

func (c *compiler) property(field, name string, v cue.Value) (Property, bool) {
	if !validMemberName(name) {
		c.fail(ErrCodeMemberName, field, v, "invalid property name %q", name)
		return Property{}, false
	}
	p := Property{Name: name, EmitsChanged: true}
	var err error
	if p.Type, err = c.requiredString(v, "type", field); err != nil {
		return Property{}, false
	}
	if !c.checkType(field+".type", v, p.Type) {
		return Property{}, false
	}
	if p.Access, err = c.requiredString(v, "access", field); err != nil {
		return Property{}, false
	}
	switch p.Access {
	case AccessRead, AccessWrite, AccessReadWrite:
	default:
		c.fail(ErrCodeProperty, field+".access", v, "access must be read, write or readwrite, got %q", p.Access)
		return Property{}, false
	}
	if ev := v.LookupPath(cue.ParsePath("emits_changed")); ev.Exists() {
		if p.EmitsChanged, err = ev.Bool(); err != nil {
			c.cueErr(err, field+".emits_changed")
			return Property{}, false
		}
	}

	vv := v.LookupPath(cue.ParsePath("value"))
	if !vv.Exists() {
		c.fail(ErrCodeProperty, field+".value", v, "value is required")
		return Property{}, false
	}
	if p.Value, err = toGo(vv); err != nil {
		c.cueErr(err, field+".value")
		return Property{}, false
	}
	if _, err := ir.ToDBus(p.Type, p.Value); err != nil {
		c.fail(ErrCodeProperty, field+".value", vv, "%v", err)
		return Property{}, false
	}
	return p, true
}

func (c *compiler) object(m *Manifest, path string, v cue.Value) (Object, bool) {
	field := "objects." + path
	if !dbus.ObjectPath(path).IsValid() {
		c.fail(ErrCodeObject, field, v, "invalid object path %q", path)
		return Object{}, false
	}
	obj := Object{Path: path}
	iv := v.LookupPath(cue.ParsePath("interfaces"))
	if !iv.Exists() {
		return obj, true
	}
	iter, err := iv.List()
	if err != nil {
		c.cueErr(err, field+".interfaces")
		return Object{}, false
	}
	ok := true
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			c.cueErr(err, field+".interfaces")
			ok = false
			continue
		}
		if _, declared := m.Interface(name); !declared {
			c.fail(ErrCodeObject, field+".interfaces", iter.Value(), "interface %q is not declared", name)
			ok = false
			continue
		}
		if slices.Contains(obj.Interfaces, name) {
			c.fail(ErrCodeObject, field+".interfaces", iter.Value(), "interface %q listed twice", name)
			ok = false
			continue
		}
		obj.Interfaces = append(obj.Interfaces, name)
	}
	return obj, ok
}

// toGo converts a concrete CUE value into plain Go values: nil, bool,
// string, int64, float64, []any and map[string]any.
func toGo(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		out := []any{}
		for iter.Next() {
			item, err := toGo(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		out := map[string]any{}
		for iter.Next() {
			item, err := toGo(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Selector().Unquoted()] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("value of kind %v is not concrete", v.IncompleteKind())
}

package dispatch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/godbus/dbus/v5"
)

// IfaceBuilder declares the methods, signals and properties of one
// interface whose objects carry payload type T.
type IfaceBuilder[T any] struct {
	desc *ifaceDesc
}

// Register declares a new interface and returns its token. build may be nil
// for marker interfaces with no members.
func Register[T any](cr *Crossroads, name string, build func(b *IfaceBuilder[T])) IfaceToken[T] {
	d := newIfaceDesc(name, reflect.TypeFor[T]())
	if build != nil {
		build(&IfaceBuilder[T]{desc: d})
	}
	id := cr.registry.push(d)
	cr.logger.Debug("interface registered", "interface", name, "id", id, "payload", d.payload.String())
	return IfaceToken[T]{id: id}
}

// Method declares a method whose handler receives the object's payload.
// The call body must match args; the returned values must match returns.
func (b *IfaceBuilder[T]) Method(name string, args, returns []Arg, fn func(ctx *Context, data *T, body []any) ([]any, error)) {
	b.desc.addMethod(name, args, returns, func(ctx *Context, cr *Crossroads) *Context {
		_ = ctx.Check(func(ctx *Context) error {
			if err := checkSignature(ctx, args); err != nil {
				return err
			}
			data, ok := Data[T](cr, ctx.Path())
			if !ok {
				return NoPath(ctx.Path())
			}
			out, err := fn(ctx, data, ctx.Message().Body)
			if err != nil {
				return err
			}
			ctx.Reply(out...)
			return nil
		})
		return ctx
	})
}

// MethodWithCrossroads declares a method whose handler gets the whole
// Crossroads instead of the payload, for handlers that touch other objects,
// register interfaces or dispatch further calls.
func (b *IfaceBuilder[T]) MethodWithCrossroads(name string, args, returns []Arg, fn func(ctx *Context, cr *Crossroads, body []any) ([]any, error)) {
	b.desc.addMethod(name, args, returns, crossroadsHandler(args, fn))
}

func crossroadsHandler(args []Arg, fn func(ctx *Context, cr *Crossroads, body []any) ([]any, error)) Handler {
	return func(ctx *Context, cr *Crossroads) *Context {
		_ = ctx.Check(func(ctx *Context) error {
			if err := checkSignature(ctx, args); err != nil {
				return err
			}
			out, err := fn(ctx, cr, ctx.Message().Body)
			if err != nil {
				return err
			}
			ctx.Reply(out...)
			return nil
		})
		return ctx
	}
}

// MethodRaw declares a method with an unwrapped Handler. No argument check
// is done. Returning nil from h defers the reply.
func (b *IfaceBuilder[T]) MethodRaw(name string, args, returns []Arg, h Handler) {
	b.desc.addMethod(name, args, returns, h)
}

// Signal declares a signal for introspection.
func (b *IfaceBuilder[T]) Signal(name string, args []Arg) {
	b.desc.signals = append(b.desc.signals, signalDesc{name: name, args: args})
}

// Property declares a property with the given type signature. Attach a
// getter and/or setter on the returned builder.
func (b *IfaceBuilder[T]) Property(name, signature string) *PropBuilder[T] {
	if _, dup := b.desc.props[name]; dup {
		panic(fmt.Sprintf("dispatch: duplicate property %s.%s", b.desc.name, name))
	}
	p := &propDesc{signature: signature, emitsChanged: true}
	b.desc.props[name] = p
	b.desc.propOrder = append(b.desc.propOrder, name)
	return &PropBuilder[T]{desc: p}
}

// PropBuilder configures one property.
type PropBuilder[T any] struct {
	desc *propDesc
}

// Get installs the getter.
func (p *PropBuilder[T]) Get(fn func(pc *PropContext, data *T) (any, error)) *PropBuilder[T] {
	p.desc.get = func(ctx *Context, cr *Crossroads) (any, error) {
		data, ok := Data[T](cr, ctx.Path())
		if !ok {
			return nil, NoPath(ctx.Path())
		}
		return fn(ctx.PropContext(), data)
	}
	return p
}

// Set installs the setter. value is the unwrapped variant content.
func (p *PropBuilder[T]) Set(fn func(pc *PropContext, data *T, value any) error) *PropBuilder[T] {
	p.desc.set = func(ctx *Context, cr *Crossroads, value any) error {
		data, ok := Data[T](cr, ctx.Path())
		if !ok {
			return NoPath(ctx.Path())
		}
		return fn(ctx.PropContext(), data, value)
	}
	return p
}

// EmitsChanged controls whether a successful Set queues PropertiesChanged.
// Defaults to true.
func (p *PropBuilder[T]) EmitsChanged(emit bool) *PropBuilder[T] {
	p.desc.emitsChanged = emit
	return p
}

func (d *ifaceDesc) addMethod(name string, args, returns []Arg, h Handler) {
	if _, dup := d.methods[name]; dup {
		panic(fmt.Sprintf("dispatch: duplicate method %s.%s", d.name, name))
	}
	d.methods[name] = &methodSlot{args: args, returns: returns, handler: h}
	d.methodOrder = append(d.methodOrder, name)
}

func joinSignature(args []Arg) string {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(a.Signature)
	}
	return sb.String()
}

func checkSignature(ctx *Context, args []Arg) error {
	want := joinSignature(args)
	got := ""
	if body := ctx.Message().Body; len(body) > 0 {
		got = dbus.SignatureOf(body...).String()
	}
	if got != want {
		return InvalidArgs("expected signature %q, got %q", want, got)
	}
	return nil
}

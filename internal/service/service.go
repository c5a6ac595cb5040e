package service

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/manifest"
)

// Service is a Crossroads populated from a manifest.
type Service struct {
	Crossroads *dispatch.Crossroads
	Manifest   *manifest.Manifest

	tokens map[string]dispatch.IfaceToken[ObjectState]
	logger *slog.Logger
}

// Build registers every manifest interface and inserts every manifest
// object. opts configure the Crossroads.
func Build(m *manifest.Manifest, logger *slog.Logger, opts ...dispatch.Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := dispatch.New(append([]dispatch.Option{dispatch.WithLogger(logger)}, opts...)...)
	s := &Service{
		Crossroads: cr,
		Manifest:   m,
		tokens:     make(map[string]dispatch.IfaceToken[ObjectState], len(m.Interfaces)),
		logger:     logger,
	}

	for _, iface := range m.Interfaces {
		tok, err := s.register(iface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", iface.Name, err)
		}
		s.tokens[iface.Name] = tok
	}

	for _, obj := range m.Objects {
		if err := s.insert(obj); err != nil {
			return nil, fmt.Errorf("object %s: %w", obj.Path, err)
		}
	}
	logger.Debug("service built",
		"interfaces", len(m.Interfaces),
		"objects", len(m.Objects),
	)
	return s, nil
}

// State returns the payload of the object at path.
func (s *Service) State(path dbus.ObjectPath) (*ObjectState, bool) {
	return dispatch.Data[ObjectState](s.Crossroads, path)
}

func (s *Service) insert(obj manifest.Object) error {
	path := dbus.ObjectPath(obj.Path)
	state := newObjectState(path)
	tokens := make([]dispatch.IfaceToken[ObjectState], 0, len(obj.Interfaces))
	for _, name := range obj.Interfaces {
		tok, ok := s.tokens[name]
		if !ok {
			return fmt.Errorf("interface %s is not registered", name)
		}
		tokens = append(tokens, tok)

		iface, _ := s.Manifest.Interface(name)
		for _, p := range iface.Properties {
			v, err := ir.ToDBus(p.Type, p.Value)
			if err != nil {
				return fmt.Errorf("property %s.%s: %w", name, p.Name, err)
			}
			state.SetProperty(name, p.Name, v)
		}
	}
	return dispatch.Insert(s.Crossroads, path, tokens, state)
}

func (s *Service) register(iface manifest.Interface) (dispatch.IfaceToken[ObjectState], error) {
	var buildErr error
	tok := dispatch.Register(s.Crossroads, iface.Name, func(b *dispatch.IfaceBuilder[ObjectState]) {
		for _, sig := range iface.Signals {
			b.Signal(sig.Name, dispatchArgs(sig.Args))
		}
		for _, m := range iface.Methods {
			fn, err := s.methodImpl(iface.Name, m)
			if err != nil {
				buildErr = fmt.Errorf("method %s: %w", m.Name, err)
				return
			}
			b.Method(m.Name, dispatchArgs(m.Args), dispatchArgs(m.Returns),
				func(ctx *dispatch.Context, state *ObjectState, body []any) ([]any, error) {
					state.Calls++
					return fn(ctx, body)
				})
		}
		for _, p := range iface.Properties {
			s.property(b, iface.Name, p)
		}
	})
	return tok, buildErr
}

func (s *Service) property(b *dispatch.IfaceBuilder[ObjectState], iface string, p manifest.Property) {
	pb := b.Property(p.Name, p.Type).EmitsChanged(p.EmitsChanged)
	if p.Readable() {
		pb.Get(func(pc *dispatch.PropContext, state *ObjectState) (any, error) {
			v, ok := state.Property(pc.Interface, pc.Name)
			if !ok {
				return nil, dispatch.UnknownProperty(pc.Name)
			}
			return v, nil
		})
	}
	if p.Writable() {
		pb.Set(func(pc *dispatch.PropContext, state *ObjectState, value any) error {
			state.SetProperty(pc.Interface, pc.Name, value)
			s.logger.Debug("property set",
				"path", pc.Path,
				"interface", iface,
				"property", pc.Name,
			)
			return nil
		})
	}
}

type methodFunc func(ctx *dispatch.Context, body []any) ([]any, error)

func (s *Service) methodImpl(iface string, m manifest.Method) (methodFunc, error) {
	switch m.Impl {
	case manifest.ImplEcho:
		return func(_ *dispatch.Context, body []any) ([]any, error) {
			return body, nil
		}, nil

	case manifest.ImplSum:
		retType := m.Returns[0].Type
		return func(_ *dispatch.Context, body []any) ([]any, error) {
			total, err := sum(body)
			if err != nil {
				return nil, err
			}
			out, err := ir.ToDBus(retType, total)
			if err != nil {
				return nil, dispatch.Failed("sum %d does not fit %s", total, retType)
			}
			return []any{out}, nil
		}, nil

	case manifest.ImplConst:
		reply, err := ir.ToBody(manifest.Signature(m.Returns), m.Reply)
		if err != nil {
			return nil, err
		}
		return func(_ *dispatch.Context, _ []any) ([]any, error) {
			return reply, nil
		}, nil

	case manifest.ImplFail:
		me := &dispatch.MethodError{Name: dispatch.ErrNameFailed, Message: fmt.Sprintf("%s.%s failed", iface, m.Name)}
		if m.Error != nil {
			if m.Error.Name != "" {
				me.Name = m.Error.Name
			}
			if m.Error.Message != "" {
				me.Message = m.Error.Message
			}
		}
		return func(_ *dispatch.Context, _ []any) ([]any, error) {
			return nil, me
		}, nil

	case manifest.ImplEmit:
		signal := m.Signal
		return func(ctx *dispatch.Context, body []any) ([]any, error) {
			ctx.PushMessage(ctx.MakeSignal(signal, body...))
			return nil, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown impl %q", m.Impl)
}

// sum adds integer arguments, failing on overflow.
func sum(body []any) (int64, error) {
	var total int64
	for i, v := range body {
		n, err := asInt64(v)
		if err != nil {
			return 0, dispatch.InvalidArgs("arg %d: %v", i, err)
		}
		if (n > 0 && total > math.MaxInt64-n) || (n < 0 && total < math.MinInt64-n) {
			return 0, dispatch.Failed("sum overflows int64")
		}
		total += n
	}
	return total, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case byte:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d exceeds int64", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

func dispatchArgs(args []manifest.Arg) []dispatch.Arg {
	if len(args) == 0 {
		return nil
	}
	out := make([]dispatch.Arg, len(args))
	for i, a := range args {
		out[i] = dispatch.Arg{Name: a.Name, Signature: a.Type}
	}
	return out
}

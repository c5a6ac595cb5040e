package service

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/manifest"
)

// Call describes a method call in loosely typed form, as read from the
// command line or a scenario file.
type Call struct {
	Path      string `yaml:"path" json:"path"`
	Interface string `yaml:"interface,omitempty" json:"interface,omitempty"`
	Method    string `yaml:"method" json:"method"`
	Args      []any  `yaml:"args,omitempty" json:"args,omitempty"`

	// Signature overrides the declared argument types.
	Signature string `yaml:"signature,omitempty" json:"signature,omitempty"`
	NoReply   bool   `yaml:"no_reply,omitempty" json:"no_reply,omitempty"`
	Sender    string `yaml:"sender,omitempty" json:"sender,omitempty"`
}

// standardSignatures are the input signatures of the built-in interfaces.
var standardSignatures = map[string]map[string]string{
	dispatch.IntrospectableName: {"Introspect": ""},
	dispatch.PropertiesName:     {"Get": "ss", "GetAll": "s", "Set": "ssv"},
}

// BuildCall converts c into a method call message. Arguments are converted
// by, in order of preference: c.Signature, the method's declared signature,
// or per-value inference when the method is not declared.
func (s *Service) BuildCall(c Call) (*dbus.Message, error) {
	path := dbus.ObjectPath(c.Path)
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", c.Path)
	}
	if c.Method == "" {
		return nil, fmt.Errorf("method is required")
	}

	var body []any
	var err error
	sig, declared := c.Signature, c.Signature != ""
	if !declared {
		sig, declared = s.InputSignature(c.Path, c.Interface, c.Method)
	}
	if declared {
		body, err = ir.ToBody(sig, c.Args)
	} else {
		body, err = inferBody(c.Args)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Method, err)
	}

	msg := dispatch.NewMethodCall(path, c.Interface, c.Method, body...)
	if c.NoReply {
		msg.Flags |= dbus.FlagNoReplyExpected
	}
	if c.Sender != "" {
		msg.Headers[dbus.FieldSender] = dbus.MakeVariant(c.Sender)
	}
	return msg, nil
}

// InputSignature returns the declared input signature of a method. With an
// empty iface, the interfaces placed at path are searched and the method
// must be declared by exactly one of them.
func (s *Service) InputSignature(path, iface, method string) (string, bool) {
	if iface != "" {
		return s.declaredSignature(iface, method)
	}
	var found []string
	for _, obj := range s.Manifest.Objects {
		if obj.Path != path {
			continue
		}
		for _, name := range obj.Interfaces {
			if sig, ok := s.declaredSignature(name, method); ok {
				found = append(found, sig)
			}
		}
	}
	if s.Crossroads.Has(dbus.ObjectPath(path)) {
		for name := range standardSignatures {
			if sig, ok := standardSignatures[name][method]; ok {
				found = append(found, sig)
			}
		}
	}
	if len(found) != 1 {
		return "", false
	}
	return found[0], true
}

func (s *Service) declaredSignature(iface, method string) (string, bool) {
	if std, ok := standardSignatures[iface]; ok {
		sig, ok := std[method]
		return sig, ok
	}
	i, ok := s.Manifest.Interface(iface)
	if !ok {
		return "", false
	}
	m, ok := i.Method(method)
	if !ok {
		return "", false
	}
	return manifest.Signature(m.Args), true
}

func inferBody(args []any) ([]any, error) {
	body := make([]any, len(args))
	for i, a := range args {
		v, err := ir.Infer(a)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		body[i] = v
	}
	return body, nil
}

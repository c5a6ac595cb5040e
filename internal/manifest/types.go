package manifest

import "cuelang.org/go/cue"

// Method behaviours.
const (
	ImplEcho  = "echo"
	ImplSum   = "sum"
	ImplConst = "const"
	ImplFail  = "fail"
	ImplEmit  = "emit"
)

// Property access modes.
const (
	AccessRead      = "read"
	AccessWrite     = "write"
	AccessReadWrite = "readwrite"
)

// Manifest is a compiled service description. Interfaces and objects are
// sorted by name; members keep declaration order.
type Manifest struct {
	Interfaces []Interface
	Objects    []Object

	// CUEValue is the raw value for additional processing.
	CUEValue  cue.Value
	FileCount int
}

// Interface is one declared bus interface.
type Interface struct {
	Name       string
	Methods    []Method
	Signals    []Signal
	Properties []Property
}

// Arg is a named single complete type.
type Arg struct {
	Name string
	Type string
}

// Method declares a method and the behaviour backing it.
type Method struct {
	Name    string
	Args    []Arg
	Returns []Arg
	Impl    string

	// Reply holds the values returned by a const method.
	Reply []any
	// Error describes what a fail method replies with.
	Error *ErrorReply
	// Signal names the signal an emit method sends.
	Signal string
}

// ErrorReply is a bus error name and message. An empty name means
// org.freedesktop.DBus.Error.Failed.
type ErrorReply struct {
	Name    string
	Message string
}

// Signal declares a signal.
type Signal struct {
	Name string
	Args []Arg
}

// Property declares a property with its initial value.
type Property struct {
	Name         string
	Type         string
	Access       string
	Value        any
	EmitsChanged bool
}

// Readable reports whether the property can be read.
func (p Property) Readable() bool { return p.Access != AccessWrite }

// Writable reports whether the property can be set.
func (p Property) Writable() bool { return p.Access != AccessRead }

// Object places interfaces at a path.
type Object struct {
	Path       string
	Interfaces []string
}

// Interface returns the named interface.
func (m *Manifest) Interface(name string) (*Interface, bool) {
	for i := range m.Interfaces {
		if m.Interfaces[i].Name == name {
			return &m.Interfaces[i], true
		}
	}
	return nil, false
}

// Method returns the named method.
func (i *Interface) Method(name string) (*Method, bool) {
	for j := range i.Methods {
		if i.Methods[j].Name == name {
			return &i.Methods[j], true
		}
	}
	return nil, false
}

// Signal returns the named signal.
func (i *Interface) Signal(name string) (*Signal, bool) {
	for j := range i.Signals {
		if i.Signals[j].Name == name {
			return &i.Signals[j], true
		}
	}
	return nil, false
}

// Signature concatenates the argument types.
func Signature(args []Arg) string {
	var sig string
	for _, a := range args {
		sig += a.Type
	}
	return sig
}

package service

import (
	"maps"

	"github.com/godbus/dbus/v5"
)

// ObjectState is the payload of a manifest object: its property values,
// keyed by interface then property name, and a count of handled calls.
// Like the Crossroads that holds it, it is not safe for concurrent use.
type ObjectState struct {
	Path  dbus.ObjectPath
	Calls int

	props map[string]map[string]any
}

func newObjectState(path dbus.ObjectPath) ObjectState {
	return ObjectState{Path: path, props: map[string]map[string]any{}}
}

// Property returns a property value.
func (s *ObjectState) Property(iface, name string) (any, bool) {
	v, ok := s.props[iface][name]
	return v, ok
}

// SetProperty stores a property value.
func (s *ObjectState) SetProperty(iface, name string, value any) {
	if s.props[iface] == nil {
		s.props[iface] = map[string]any{}
	}
	s.props[iface][name] = value
}

// Properties returns a copy of one interface's property values.
func (s *ObjectState) Properties(iface string) map[string]any {
	return maps.Clone(s.props[iface])
}

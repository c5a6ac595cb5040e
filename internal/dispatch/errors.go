package dispatch

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Bus error names produced by the dispatcher.
const (
	ErrNameUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	ErrNameUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrNameUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrNameUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrNameInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrNamePropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
	ErrNameFailed           = "org.freedesktop.DBus.Error.Failed"
)

var (
	// ErrNotMethodCall is returned by HandleMessage for messages that are not
	// routable method calls. They are dropped without a reply.
	ErrNotMethodCall = errors.New("not a routable method call")

	// ErrSendFailed wraps transport errors raised while flushing.
	ErrSendFailed = errors.New("send failed")

	// ErrInvalidPath is returned by Insert for malformed object paths.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrPayloadMismatch is returned by Insert when a token names an
	// interface registered for a different payload type.
	ErrPayloadMismatch = errors.New("interface payload type mismatch")

	// ErrAborted is returned by Context.Check when the step failed. The
	// error reply, if one is owed, is already staged on the Context.
	ErrAborted = errors.New("dispatch aborted")
)

// MethodError is an error that turns into an error reply.
//
// Name is the bus error name, Message the human-readable detail carried as
// the reply's single string argument.
type MethodError struct {
	Name    string
	Message string
}

// Error implements the error interface.
func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ToMessage builds the error reply to call.
func (e *MethodError) ToMessage(call *dbus.Message) *dbus.Message {
	msg := newReplyTo(call, dbus.TypeError)
	msg.Headers[dbus.FieldErrorName] = dbus.MakeVariant(e.Name)
	setBody(msg, e.Message)
	return msg
}

// NoPath reports that no object is registered at path.
func NoPath(path dbus.ObjectPath) *MethodError {
	return &MethodError{Name: ErrNameUnknownObject, Message: fmt.Sprintf("Path %q does not exist", path)}
}

// UnknownInterface reports an interface the object does not implement.
func UnknownInterface(name string) *MethodError {
	return &MethodError{Name: ErrNameUnknownInterface, Message: fmt.Sprintf("Interface %q not found", name)}
}

// UnknownMethod reports a method that is absent, ambiguous or checked out.
func UnknownMethod(name string) *MethodError {
	return &MethodError{Name: ErrNameUnknownMethod, Message: fmt.Sprintf("Method %q not found", name)}
}

// UnknownProperty reports a property the interface does not declare.
func UnknownProperty(name string) *MethodError {
	return &MethodError{Name: ErrNameUnknownProperty, Message: fmt.Sprintf("Property %q not found", name)}
}

// InvalidArgs reports malformed call arguments.
func InvalidArgs(format string, args ...any) *MethodError {
	return &MethodError{Name: ErrNameInvalidArgs, Message: fmt.Sprintf(format, args...)}
}

// PropertyReadOnly reports a Set on a property without a setter.
func PropertyReadOnly(name string) *MethodError {
	return &MethodError{Name: ErrNamePropertyReadOnly, Message: fmt.Sprintf("Property %q is read only", name)}
}

// Failed reports a generic application failure.
func Failed(format string, args ...any) *MethodError {
	return &MethodError{Name: ErrNameFailed, Message: fmt.Sprintf(format, args...)}
}

// AsMethodError converts err into a MethodError. Errors that are not
// already MethodErrors (or dbus.Error values) become Failed.
func AsMethodError(err error) *MethodError {
	var me *MethodError
	if errors.As(err, &me) {
		return me
	}
	var de dbus.Error
	if errors.As(err, &de) {
		msg := ""
		if len(de.Body) > 0 {
			if s, ok := de.Body[0].(string); ok {
				msg = s
			}
		}
		return &MethodError{Name: de.Name, Message: msg}
	}
	return &MethodError{Name: ErrNameFailed, Message: err.Error()}
}

// IsNoPath returns true if err is a MethodError for an unknown object.
func IsNoPath(err error) bool { return hasName(err, ErrNameUnknownObject) }

// IsUnknownInterface returns true if err is a MethodError for an unknown interface.
func IsUnknownInterface(err error) bool { return hasName(err, ErrNameUnknownInterface) }

// IsUnknownMethod returns true if err is a MethodError for an unknown method.
func IsUnknownMethod(err error) bool { return hasName(err, ErrNameUnknownMethod) }

func hasName(err error, name string) bool {
	var me *MethodError
	if errors.As(err, &me) {
		return me.Name == name
	}
	return false
}

package dispatch

import (
	"github.com/godbus/dbus/v5"
)

// Sender is the outbound half of the transport.
type Sender interface {
	Send(msg *dbus.Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(msg *dbus.Message) error

// Send implements Sender.
func (f SenderFunc) Send(msg *dbus.Message) error { return f(msg) }

// NewMethodCall builds a method call message. An empty iface omits the
// interface header.
func NewMethodCall(path dbus.ObjectPath, iface, member string, body ...any) *dbus.Message {
	msg := &dbus.Message{
		Type:    dbus.TypeMethodCall,
		Headers: map[dbus.HeaderField]dbus.Variant{},
	}
	msg.Headers[dbus.FieldPath] = dbus.MakeVariant(path)
	msg.Headers[dbus.FieldMember] = dbus.MakeVariant(member)
	if iface != "" {
		msg.Headers[dbus.FieldInterface] = dbus.MakeVariant(iface)
	}
	setBody(msg, body...)
	return msg
}

// NewSignal builds a signal emitted from path on iface.
func NewSignal(path dbus.ObjectPath, iface, member string, body ...any) *dbus.Message {
	msg := &dbus.Message{
		Type:    dbus.TypeSignal,
		Headers: map[dbus.HeaderField]dbus.Variant{},
	}
	msg.Headers[dbus.FieldPath] = dbus.MakeVariant(path)
	msg.Headers[dbus.FieldInterface] = dbus.MakeVariant(iface)
	msg.Headers[dbus.FieldMember] = dbus.MakeVariant(member)
	setBody(msg, body...)
	return msg
}

// newReplyTo builds an empty reply of the given type addressed back to the
// sender of call.
func newReplyTo(call *dbus.Message, typ dbus.Type) *dbus.Message {
	msg := &dbus.Message{
		Type:    typ,
		Headers: map[dbus.HeaderField]dbus.Variant{},
	}
	msg.Headers[dbus.FieldReplySerial] = dbus.MakeVariant(call.Serial())
	if sender, ok := call.Headers[dbus.FieldSender]; ok {
		msg.Headers[dbus.FieldDestination] = sender
	}
	return msg
}

// setBody replaces the body and keeps the signature header in step.
func setBody(msg *dbus.Message, body ...any) {
	msg.Body = body
	if len(body) == 0 {
		delete(msg.Headers, dbus.FieldSignature)
		return
	}
	msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(body...))
}

// SetBody replaces a message body and its signature header.
func SetBody(msg *dbus.Message, body ...any) { setBody(msg, body...) }

// HeaderString returns a string-valued header, or "" when absent.
func HeaderString(msg *dbus.Message, field dbus.HeaderField) string {
	v, ok := msg.Headers[field]
	if !ok {
		return ""
	}
	switch s := v.Value().(type) {
	case string:
		return s
	case dbus.ObjectPath:
		return string(s)
	case dbus.Signature:
		return s.String()
	}
	return ""
}

package dispatch

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Context is the transient state of one method call dispatch: where it is
// addressed, the inbound message, the staged reply and the extra messages
// queued behind it.
type Context struct {
	path   dbus.ObjectPath
	iface  string
	method string
	msg    *dbus.Message

	prop    *PropContext
	reply   *dbus.Message
	extra   []*dbus.Message
	failure *MethodError
}

// NewContext validates msg as a routable method call. It returns false for
// any other message kind or when the path or member header is missing; such
// messages are dropped without a reply.
func NewContext(msg *dbus.Message) (*Context, bool) {
	if msg == nil || msg.Type != dbus.TypeMethodCall {
		return nil, false
	}
	pv, ok := msg.Headers[dbus.FieldPath]
	if !ok {
		return nil, false
	}
	path, ok := pv.Value().(dbus.ObjectPath)
	if !ok || path == "" {
		return nil, false
	}
	member := HeaderString(msg, dbus.FieldMember)
	if member == "" {
		return nil, false
	}
	return &Context{
		path:   path,
		iface:  HeaderString(msg, dbus.FieldInterface),
		method: member,
		msg:    msg,
	}, true
}

// Path returns the target object path.
func (c *Context) Path() dbus.ObjectPath { return c.path }

// Interface returns the interface the call is serviced under, or "" if the
// call omitted it and it has not been resolved yet.
func (c *Context) Interface() string { return c.iface }

// Method returns the called member name.
func (c *Context) Method() string { return c.method }

// Message returns the inbound method call.
func (c *Context) Message() *dbus.Message { return c.msg }

// NoReply reports whether the caller asked for no reply.
func (c *Context) NoReply() bool { return c.msg.Flags&dbus.FlagNoReplyExpected != 0 }

// HasReply reports whether a reply is staged.
func (c *Context) HasReply() bool { return c.reply != nil }

// StagedReply returns the staged reply, or nil.
func (c *Context) StagedReply() *dbus.Message { return c.reply }

// Check runs a fallible step. On failure it stages an error reply (unless
// the caller asked for none) and returns ErrAborted.
func (c *Context) Check(step func(ctx *Context) error) error {
	err := step(c)
	if err == nil {
		return nil
	}
	// A nested Check already staged its reply and recorded the failure.
	if errors.Is(err, ErrAborted) && c.failure != nil {
		return ErrAborted
	}
	me := AsMethodError(err)
	if c.failure == nil {
		c.failure = me
	}
	if !c.NoReply() {
		c.reply = me.ToMessage(c.msg)
	}
	return ErrAborted
}

// Err returns the first failure recorded by Check or ReplyError, or nil.
// A failure is recorded even when the caller asked for no reply.
func (c *Context) Err() error {
	if c.failure == nil {
		return nil
	}
	return c.failure
}

// DoReply stages a success reply populated by fill. It is a no-op if the
// caller asked for no reply or a reply is already staged.
func (c *Context) DoReply(fill func(reply *dbus.Message)) {
	if c.NoReply() || c.reply != nil {
		return
	}
	reply := newReplyTo(c.msg, dbus.TypeMethodReply)
	if fill != nil {
		fill(reply)
	}
	c.reply = reply
}

// Reply stages a success reply carrying body. Same gating as DoReply.
func (c *Context) Reply(body ...any) {
	c.DoReply(func(reply *dbus.Message) { setBody(reply, body...) })
}

// ReplyError stages an error reply. Same gating as DoReply.
func (c *Context) ReplyError(err error) {
	if c.NoReply() || c.reply != nil {
		return
	}
	me := AsMethodError(err)
	if c.failure == nil {
		c.failure = me
	}
	c.reply = me.ToMessage(c.msg)
}

// SetReply replaces or clears the staged reply. checkNoReply skips the
// change when the caller asked for no reply; checkSet skips it when a reply
// is already staged.
func (c *Context) SetReply(msg *dbus.Message, checkNoReply, checkSet bool) {
	if checkNoReply && c.NoReply() {
		return
	}
	if checkSet && c.reply != nil {
		return
	}
	c.reply = msg
}

// PushMessage queues msg to be sent after the reply.
func (c *Context) PushMessage(msg *dbus.Message) {
	c.extra = append(c.extra, msg)
}

// Pending returns the staged reply followed by the queued messages, in
// flush order.
func (c *Context) Pending() []*dbus.Message {
	out := make([]*dbus.Message, 0, len(c.extra)+1)
	if c.reply != nil {
		out = append(out, c.reply)
	}
	return append(out, c.extra...)
}

// MakeSignal builds a signal from the Context's path and interface. It
// panics if the interface is not known.
func (c *Context) MakeSignal(member string, body ...any) *dbus.Message {
	if c.iface == "" {
		panic(fmt.Sprintf("dispatch: MakeSignal(%s) without a resolved interface", member))
	}
	return NewSignal(c.path, c.iface, member, body...)
}

// Flush sends the staged reply, then the queued messages in order. The
// first send failure stops the flush; messages already sent stay sent.
func (c *Context) Flush(s Sender) error {
	if c.reply != nil {
		reply := c.reply
		c.reply = nil
		if err := s.Send(reply); err != nil {
			return fmt.Errorf("%w: reply: %w", ErrSendFailed, err)
		}
	}
	for len(c.extra) > 0 {
		msg := c.extra[0]
		c.extra[0] = nil
		c.extra = c.extra[1:]
		if err := s.Send(msg); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSendFailed, HeaderString(msg, dbus.FieldMember), err)
		}
	}
	c.extra = nil
	return nil
}

// TakePropContext removes and returns the property sub-context.
// It panics if none is installed.
func (c *Context) TakePropContext() *PropContext {
	if c.prop == nil {
		panic("dispatch: no property context installed")
	}
	p := c.prop
	c.prop = nil
	return p
}

// GivePropContext installs the property sub-context.
func (c *Context) GivePropContext(p *PropContext) { c.prop = p }

// PropContext borrows the installed property sub-context.
// It panics if none is installed.
func (c *Context) PropContext() *PropContext {
	if c.prop == nil {
		panic("dispatch: no property context installed")
	}
	return c.prop
}

func (c *Context) resolveInterface(name string) {
	if c.iface == "" {
		c.iface = name
	}
}

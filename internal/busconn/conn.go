package busconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// Bus kinds accepted by Dial.
const (
	SessionBus = "session"
	SystemBus  = "system"
)

// inboundBuffer is the capacity of the eavesdrop channel.
const inboundBuffer = 64

// ErrNameTaken is returned when the requested well-known name already has
// a primary owner.
var ErrNameTaken = errors.New("bus name already owned")

// Enqueuer accepts inbound method calls. loop.Loop implements it.
type Enqueuer interface {
	Enqueue(msg *dbus.Message) bool
}

// Conn is a bus connection serving one Crossroads.
type Conn struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// Dial connects to the session or system bus.
func Dial(bus string, logger *slog.Logger) (*Conn, error) {
	var conn *dbus.Conn
	var err error
	switch bus {
	case SessionBus, "":
		conn, err = dbus.ConnectSessionBus()
	case SystemBus:
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus %q: must be %s or %s", bus, SessionBus, SystemBus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", bus, err)
	}
	return New(conn, logger), nil
}

// New wraps an established connection.
func New(conn *dbus.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{conn: conn, logger: logger}
}

// UniqueName returns the connection's unique bus name.
func (c *Conn) UniqueName() string {
	names := c.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// RequestName claims a well-known name. Must be called before Serve: once
// eavesdropping starts, replies to the connection's own calls no longer
// reach godbus.
func (c *Conn) RequestName(name string) error {
	reply, err := c.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		return fmt.Errorf("request name %s: %w", name, ErrNameTaken)
	}
	c.logger.Info("bus name acquired", "name", name)
	return nil
}

// Send implements dispatch.Sender.
func (c *Conn) Send(msg *dbus.Message) error {
	call := c.conn.Send(msg, nil)
	if call.Err != nil {
		return fmt.Errorf("bus send: %w", call.Err)
	}
	return nil
}

// Serve hands every inbound method call to q until ctx is cancelled or the
// connection closes.
func (c *Conn) Serve(ctx context.Context, q Enqueuer) error {
	in := make(chan *dbus.Message, inboundBuffer)
	c.conn.Eavesdrop(in)
	c.logger.Info("serving", "unique_name", c.UniqueName())
	return Pump(ctx, in, q, c.logger)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Pump forwards method calls from in to q. Other message types are
// dropped. Returns nil when in is closed, ctx.Err() on cancellation, and
// an error once q stops accepting messages.
func Pump(ctx context.Context, in <-chan *dbus.Message, q Enqueuer, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if msg == nil || msg.Type != dbus.TypeMethodCall {
				if msg != nil {
					logger.Debug("inbound message ignored", "type", msg.Type)
				}
				continue
			}
			if !q.Enqueue(msg) {
				return errors.New("loop stopped accepting messages")
			}
		}
	}
}

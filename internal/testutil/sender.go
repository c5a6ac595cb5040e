package testutil

import (
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
)

// ErrInjected is the default error returned by a CaptureSender told to fail.
var ErrInjected = errors.New("injected send failure")

// CaptureSender records every message it is asked to send.
//
// FailOn makes the n-th Send (1-based) return Err instead of recording the
// message; 0 never fails.
type CaptureSender struct {
	FailOn int
	Err    error

	mu    sync.Mutex
	calls int
	sent  []*dbus.Message
}

// Send implements the dispatch Sender capability.
func (s *CaptureSender) Send(msg *dbus.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.FailOn > 0 && s.calls == s.FailOn {
		if s.Err != nil {
			return s.Err
		}
		return ErrInjected
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns the recorded messages in send order.
func (s *CaptureSender) Sent() []*dbus.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*dbus.Message(nil), s.sent...)
}

// Calls returns how many times Send was invoked, failures included.
func (s *CaptureSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Reset forgets everything recorded so far.
func (s *CaptureSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
	s.sent = nil
}

// ErrorName returns the error-name header of msg, or "".
func ErrorName(msg *dbus.Message) string {
	v, ok := msg.Headers[dbus.FieldErrorName]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// Member returns the member header of msg, or "".
func Member(msg *dbus.Message) string {
	v, ok := msg.Headers[dbus.FieldMember]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

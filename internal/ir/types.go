package ir

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Outcome classifies how one dispatch ended.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeOK         Outcome = "ok"
	OutcomeErrorReply Outcome = "error_reply"
	// OutcomeSilentError is a failed dispatch whose caller asked for no
	// reply, so no error message left.
	OutcomeSilentError Outcome = "silent_error"
	OutcomeDropped     Outcome = "dropped"
	OutcomeSendFailed  Outcome = "send_failed"
	OutcomeDeferred    Outcome = "deferred"
	OutcomePanicked    Outcome = "panicked"
)

// ValidOutcomes lists every outcome the journal accepts.
var ValidOutcomes = map[Outcome]bool{
	OutcomePending:     true,
	OutcomeOK:          true,
	OutcomeErrorReply:  true,
	OutcomeSilentError: true,
	OutcomeDropped:     true,
	OutcomeSendFailed:  true,
	OutcomeDeferred:    true,
	OutcomePanicked:    true,
}

// Message kinds.
const (
	KindCall   = "call"
	KindReply  = "reply"
	KindError  = "error"
	KindSignal = "signal"
)

// Dispatch is one inbound message and how it was handled.
type Dispatch struct {
	ID        string  `json:"id"`
	Seq       int64   `json:"seq"`
	Path      string  `json:"path"`
	Interface string  `json:"interface"`
	Member    string  `json:"member"`
	Sender    string  `json:"sender"`
	NoReply   bool    `json:"no_reply"`
	Body      IRArray `json:"body"`
	Outcome   Outcome `json:"outcome"`
	ErrorName string  `json:"error_name"`
	IRVersion string  `json:"ir_version"`
}

// MessageRecord is one outbound message produced by a dispatch.
type MessageRecord struct {
	ID         string  `json:"id"`
	DispatchID string  `json:"dispatch_id"`
	Seq        int64   `json:"seq"`
	Kind       string  `json:"kind"`
	Path       string  `json:"path,omitempty"`
	Interface  string  `json:"interface,omitempty"`
	Member     string  `json:"member,omitempty"`
	ErrorName  string  `json:"error_name,omitempty"`
	Signature  string  `json:"signature,omitempty"`
	Body       IRArray `json:"body"`
}

// KindOf names a message type.
func KindOf(t dbus.Type) string {
	switch t {
	case dbus.TypeMethodCall:
		return KindCall
	case dbus.TypeMethodReply:
		return KindReply
	case dbus.TypeError:
		return KindError
	case dbus.TypeSignal:
		return KindSignal
	}
	return fmt.Sprintf("type_%d", t)
}

// RecordMessage converts msg into a MessageRecord, without ids.
func RecordMessage(msg *dbus.Message) (MessageRecord, error) {
	body, err := FromBody(msg.Body)
	if err != nil {
		return MessageRecord{}, err
	}
	return MessageRecord{
		Kind:      KindOf(msg.Type),
		Path:      header(msg, dbus.FieldPath),
		Interface: header(msg, dbus.FieldInterface),
		Member:    header(msg, dbus.FieldMember),
		ErrorName: header(msg, dbus.FieldErrorName),
		Signature: header(msg, dbus.FieldSignature),
		Body:      body,
	}, nil
}

// RecordDispatch converts an inbound message into a pending Dispatch.
func RecordDispatch(id string, seq int64, msg *dbus.Message) (Dispatch, error) {
	body, err := FromBody(msg.Body)
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{
		ID:        id,
		Seq:       seq,
		Path:      header(msg, dbus.FieldPath),
		Interface: header(msg, dbus.FieldInterface),
		Member:    header(msg, dbus.FieldMember),
		Sender:    header(msg, dbus.FieldSender),
		NoReply:   msg.Flags&dbus.FlagNoReplyExpected != 0,
		Body:      body,
		Outcome:   OutcomePending,
		IRVersion: IRVersion,
	}, nil
}

func header(msg *dbus.Message, field dbus.HeaderField) string {
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

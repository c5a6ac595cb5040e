package ir

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDispatch(t *testing.T) {
	msg := &dbus.Message{
		Type:  dbus.TypeMethodCall,
		Flags: dbus.FlagNoReplyExpected,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldPath:      dbus.MakeVariant(dbus.ObjectPath("/calc")),
			dbus.FieldInterface: dbus.MakeVariant("com.example.Calc"),
			dbus.FieldMember:    dbus.MakeVariant("Add"),
			dbus.FieldSender:    dbus.MakeVariant(":1.7"),
		},
		Body: []any{int32(2), int32(3)},
	}

	d, err := RecordDispatch("d-1", 4, msg)
	require.NoError(t, err)
	assert.Equal(t, Dispatch{
		ID:        "d-1",
		Seq:       4,
		Path:      "/calc",
		Interface: "com.example.Calc",
		Member:    "Add",
		Sender:    ":1.7",
		NoReply:   true,
		Body:      IRArray{IRInt(2), IRInt(3)},
		Outcome:   OutcomePending,
		IRVersion: IRVersion,
	}, d)
}

func TestRecordMessage(t *testing.T) {
	msg := &dbus.Message{
		Type: dbus.TypeError,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldErrorName: dbus.MakeVariant("org.example.Error"),
			dbus.FieldSignature: dbus.MakeVariant(dbus.SignatureOf("")),
		},
		Body: []any{"boom"},
	}

	rec, err := RecordMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, KindError, rec.Kind)
	assert.Equal(t, "org.example.Error", rec.ErrorName)
	assert.Equal(t, "s", rec.Signature)
	assert.Equal(t, IRArray{IRString("boom")}, rec.Body)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindCall, KindOf(dbus.TypeMethodCall))
	assert.Equal(t, KindReply, KindOf(dbus.TypeMethodReply))
	assert.Equal(t, KindError, KindOf(dbus.TypeError))
	assert.Equal(t, KindSignal, KindOf(dbus.TypeSignal))
	assert.Equal(t, "type_9", KindOf(dbus.Type(9)))
}

func TestValidOutcomes(t *testing.T) {
	for _, o := range []Outcome{OutcomeOK, OutcomeErrorReply, OutcomeSilentError, OutcomeDropped, OutcomeSendFailed, OutcomeDeferred, OutcomePanicked, OutcomePending} {
		assert.True(t, ValidOutcomes[o], string(o))
	}
	assert.False(t, ValidOutcomes["exploded"])
}

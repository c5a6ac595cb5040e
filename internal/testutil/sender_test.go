package testutil

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signal(member string) *dbus.Message {
	return &dbus.Message{
		Type: dbus.TypeSignal,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldMember: dbus.MakeVariant(member),
		},
	}
}

func TestCaptureSender_RecordsInOrder(t *testing.T) {
	s := &CaptureSender{}
	require.NoError(t, s.Send(signal("A")))
	require.NoError(t, s.Send(signal("B")))

	sent := s.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "A", Member(sent[0]))
	assert.Equal(t, "B", Member(sent[1]))
	assert.Equal(t, 2, s.Calls())
}

func TestCaptureSender_FailOn(t *testing.T) {
	boom := errors.New("boom")
	s := &CaptureSender{FailOn: 2, Err: boom}

	require.NoError(t, s.Send(signal("A")))
	assert.ErrorIs(t, s.Send(signal("B")), boom)
	require.NoError(t, s.Send(signal("C")))

	assert.Len(t, s.Sent(), 2)
	assert.Equal(t, 3, s.Calls())
}

func TestCaptureSender_DefaultError(t *testing.T) {
	s := &CaptureSender{FailOn: 1}
	assert.ErrorIs(t, s.Send(signal("A")), ErrInjected)
}

func TestCaptureSender_Reset(t *testing.T) {
	s := &CaptureSender{}
	require.NoError(t, s.Send(signal("A")))
	s.Reset()
	assert.Empty(t, s.Sent())
	assert.Zero(t, s.Calls())
}

func TestErrorName_Absent(t *testing.T) {
	assert.Equal(t, "", ErrorName(signal("A")))
}

func TestSequentialIDGenerator(t *testing.T) {
	g := NewSequentialIDGenerator("")
	assert.Equal(t, "dispatch-0001", g.Generate())
	assert.Equal(t, "dispatch-0002", g.Generate())

	g = NewSequentialIDGenerator("run")
	assert.Equal(t, "run-0001", g.Generate())
}

package busconn

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crossroads/internal/dispatch"
)

var _ dispatch.Sender = (*Conn)(nil)

type fakeQueue struct {
	mu     sync.Mutex
	got    []*dbus.Message
	closed bool
}

func (q *fakeQueue) Enqueue(msg *dbus.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.got = append(q.got, msg)
	return true
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestPump_ForwardsMethodCallsOnly(t *testing.T) {
	in := make(chan *dbus.Message, 4)
	call := dispatch.NewMethodCall("/a", "a.B", "M")
	in <- dispatch.NewSignal("/org/freedesktop/DBus", "org.freedesktop.DBus", "NameAcquired", ":1.5")
	in <- call
	in <- nil
	close(in)

	q := &fakeQueue{}
	require.NoError(t, Pump(context.Background(), in, q, discard()))
	require.Len(t, q.got, 1)
	assert.Same(t, call, q.got[0])
}

func TestPump_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Pump(ctx, make(chan *dbus.Message), &fakeQueue{}, discard())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPump_FailsWhenQueueCloses(t *testing.T) {
	in := make(chan *dbus.Message, 1)
	in <- dispatch.NewMethodCall("/a", "a.B", "M")

	err := Pump(context.Background(), in, &fakeQueue{closed: true}, discard())
	assert.ErrorContains(t, err, "stopped accepting")
}

func TestDial_UnknownBus(t *testing.T) {
	_, err := Dial("starship", discard())
	assert.ErrorContains(t, err, `unknown bus "starship"`)
}

// Package busconn connects a loop.Loop to a real session or system bus.
//
// A Conn is the Sender the loop replies through, and feeds inbound method
// calls into the loop's queue. Inbound traffic is taken with
// dbus.Conn.Eavesdrop, which bypasses godbus's own object export, so the
// Crossroads answers every call addressed to the connection, including
// org.freedesktop.DBus.Peer.
package busconn

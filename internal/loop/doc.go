// Package loop serializes inbound bus messages into a Crossroads.
//
// Single-writer event loop:
// Messages may be enqueued from any goroutine (typically the bus reader),
// but Run hands them to Crossroads.HandleMessage one at a time from a
// single goroutine. Handlers therefore never race each other and may
// reenter the Crossroads freely.
//
// Per dispatch the loop:
//  1. stamps the message with a logical seq and a dispatch id
//  2. journals it as pending (when a journal is configured)
//  3. routes it through HandleMessage with a recording sender
//  4. classifies the outcome and updates metrics and the journal
//
// Failures are logged and the loop continues with the next message.
package loop

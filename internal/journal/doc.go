// Package journal records dispatches in SQLite.
//
// Each inbound message handed to the dispatcher becomes a dispatch row
// carrying its canonical body and, once handling finishes, its outcome.
// Every message sent while handling it is stored under the dispatch with a
// content-addressed id, so two runs over the same input produce the same
// rows. Reads are ordered by (seq, id) so listings are stable.
package journal

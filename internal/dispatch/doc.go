// Package dispatch implements the server-side request dispatch core.
//
// A Crossroads owns an object table (path -> interfaces + payload) and an
// interface registry (interface id -> name, method handlers, properties).
// Each inbound method call is routed through exactly one request/response
// cycle:
//
//  1. NewContext validates the message (method call, path and member present).
//     Anything else is dropped without a reply.
//  2. The governing interface id is resolved for (path, optional interface).
//  3. The method handler is checked out of the registry.
//  4. The handler runs with the Context and the Crossroads itself, so it may
//     read or mutate any object, register interfaces or dispatch again.
//  5. The handler is returned to the registry on every exit path.
//  6. The staged reply and any queued messages are flushed, reply first.
//
// Steps 2 and 3 never mutate the registry on failure: an addressing error
// leaves every handler slot exactly as it was.
//
// CHECKOUT:
//
// A handler slot is either present or checked out. A checked-out slot looks
// absent to lookups, so a handler that calls back into its own
// (interface, method) pair gets UnknownMethod instead of reentering itself.
//
// PAYLOAD TYPING:
//
// Payloads are stored type-erased. IfaceToken[T] carries the payload type as
// a type parameter; every typed access downcasts and reports a mismatch as
// "not found" rather than trusting the token.
//
// PATH ORDERING:
//
// The object table is sorted by path string. Descendant queries rely on '/'
// sorting below every other character a valid object path may contain
// ([A-Za-z0-9_]), which keeps all descendants of a path contiguous. Insert
// rejects paths outside that alphabet.
//
// CONCURRENCY:
//
// A Crossroads has a single logical owner. Callers serialize HandleMessage
// (see internal/loop); nothing here locks.
package dispatch

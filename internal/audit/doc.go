// Package audit implements async event dispatching for token lifecycle operations.
//
// # Components
//
//   - [Sink] is the interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full
//     semantics. Drops are counted per [Kind]; a panicking sink is logged and
//     delivery continues.
//   - [Event] is a structured audit record with id, timestamp, kind, principal, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import jwtauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit

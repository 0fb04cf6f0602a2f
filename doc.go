// Package jwtauth authenticates HTTP requests carrying JWT bearer tokens and
// issues access and refresh tokens for a principal.
//
// Claims are built and checked by subscribers registered on an
// [events.Dispatcher]: GENERATE fills the payload of a new token, VALIDATE
// may reject a decoded token and VALID resolves the principal. The built-in
// subscribers write iat, exp and the principal id and resolve that id through
// a [principal.Directory]; applications add their own through
// [Builder.WithSubscriber] or [Engine.Dispatcher].
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// jwtauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (TokenPair, MetricsSnapshot, AuditEvent). Flow orchestration,
// flood control, audit dispatch and metric storage live under internal/ and
// are never exported. Signing lives in the jwt package, refresh records in
// refresh and its store sub-packages.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods and Build, which loads keys once.
//   - Import any sub-package that re-imports jwtauth (no import cycles).
//
// # Performance contract
//
// AuthenticateToken is the hot path. It performs one signature check and one
// directory lookup and never touches the refresh store. Redeem is allowed one
// flood control check, one store lookup and one optional revoke per call.
package jwtauth

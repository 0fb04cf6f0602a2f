// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunAuthenticate, RunIssue, RunIssueRefresh, RunRedeem)
// accepts a typed dependency struct and returns a result carrying a failure
// kind. The root package maps failure kinds to its public errors, metrics
// and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the transcoder, event dispatcher, refresh store,
// principal directory and flood control. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import jwtauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows

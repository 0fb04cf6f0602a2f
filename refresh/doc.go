// Package refresh defines refresh token records and the Store contract used
// to persist them.
//
// # Policies
//
// Under the single-active policy an owner has at most one usable record,
// and the identifier itself is the credential handed to the client. Under
// the JWT policy every issuance creates a new record whose identifier travels
// as the "jti" claim of a signed token.
//
// # Architecture boundaries
//
// This package owns the record model, identifier generation and the
// in-memory store. Redis, SQL and PostgreSQL stores live in sub-packages and
// share the conformance tests in refreshtest.
//
// # What this package must NOT do
//
//   - Physically delete records. Expired records may be reclaimed by the
//     backing store.
//   - Decode tokens or apply flood control.
package refresh

// Package claims implements the claim payload carried inside a JSON Web Token.
//
// # Data model
//
// A [Payload] is a tree of [Value] nodes. Each node is a tagged variant
// (null, string, number, bool, list or map). Claims are addressed with a
// [Path], a non-empty sequence of map keys such as ["drupal", "uid"].
//
// Get on a missing path reports absence and never fails. Set creates
// intermediate maps as needed and replaces any non-map value it has to walk
// through. Unset is a no-op when any segment is missing.
//
// # Architecture boundaries
//
// This package owns the claim tree and its JSON form. Signing, verification
// and registered-claim validation live in package jwt.
//
// # What this package must NOT do
//
//   - Perform cryptographic operations.
//   - Import jwt, events, or the root package.
package claims

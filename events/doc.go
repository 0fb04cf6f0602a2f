// Package events implements the staged subscriber pipeline that runs around
// token issuance and validation.
//
// # Stages
//
// GENERATE fills the claims of a token before it is signed. VALIDATE runs
// against verified claims and may reject the token; the first rejection
// stops the stage. VALID runs only for accepted tokens and resolves the
// principal.
//
// # Architecture boundaries
//
// The dispatcher only orders and invokes handlers. Decoding, signing and
// mapping rejections to errors belong to the caller.
//
// # What this package must NOT do
//
//   - Run handlers of one stage concurrently.
//   - Recover panics raised by handlers.
package events

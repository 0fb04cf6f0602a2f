// Package rate provides flood control: per-identifier event counting over a
// sliding window, backed by Redis sorted sets or an in-process cache.
//
// # Window semantics
//
// Register records a timestamped event. IsAllowed counts events newer than
// now minus the window and compares the count with the limit. Redis keys are
// "<prefix>:flood:<event>:<identifier>" and expire one window after the
// latest event.
//
// # What this package must NOT do
//
//   - Decide which operations are flood-controlled (the engine does).
//   - Be imported outside the jwtauth module.
package rate

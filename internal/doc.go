// Package internal groups the packages that are private to jwtauth.
//
// # Sub-packages
//
//   - audit: async audit event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for authenticate and redeem
//   - logger: zap logger construction for the jwtauth binary
//   - metrics: lock-free counters and latency histograms
//   - rate: fixed-window counters for refresh flood control
//
// Nothing here may appear in the exported jwtauth API.
package internal

// Package keys supplies raw key material to the transcoder by identifier.
//
// Static holds keys in memory, Dir reads them from files and can watch the
// directory for changes, and Cached puts a TTL cache in front of either.
package keys

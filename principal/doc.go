// Package principal defines the authenticated identity produced by token
// validation and the Directory used to look identities up by id.
package principal

// Package middleware adapts a jwtauth.Engine to net/http handlers.
//
// # Guards
//
//   - [Guard] requires a bearer token that resolves to a principal.
//   - [Optional] lets requests without a bearer token through as anonymous.
//   - [NoStoreBearer] keeps responses to bearer requests out of shared caches.
//
// Guards attach the principal to the request context; handlers read it with
// [PrincipalFromContext].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Make authorization decisions beyond pass/reject from Engine.Authenticate.
package middleware

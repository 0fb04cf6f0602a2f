// Package httpapi serves the token endpoints of a jwtauth.Engine over HTTP.
//
//	POST /jwt/token    bearer-authenticated; returns {"token", "refresh_token"}
//	POST /jwt/refresh  body {"refresh_token"}; returns a new pair
//
// Errors are written as {"error": "<message>"} with the status chosen by
// jwtauth.StatusCode. A refresh request with an unusable body is still
// checked and counted by flood control, so a blocked client always gets 429.
package httpapi

// Package jwt signs claim payloads into compact JWS tokens and verifies them
// back, for HMAC (HS256/384/512), RSA (RS256/384/512) and Ed25519 keys.
//
// Decoding only accepts algorithms from an explicit allow-list. A header
// naming "none", an unknown algorithm, or an algorithm outside the list fails
// with ReasonUnsupportedAlgorithm before any key is touched.
package jwt

// Package jwt inspects user tokens returned by identity providers and, for
// demos and tests, issues signed tokens of the same shape.
//
// Inspection never verifies signatures: the engine only needs the audience
// to decide whether a token is eligible for on-behalf-of exchange, and the
// expiry to size its exchange cache. Verification belongs to the API that
// finally receives the token.
package jwt

// Package obo implements [agentAuth.OBOProvider] with the OAuth 2.0
// JWT-bearer grant used for on-behalf-of token exchange.
//
// Each named connection is a confidential client at some token endpoint.
// The user's token is sent as the assertion together with
// requested_token_use=on_behalf_of, and the returned access token is cached
// per (connection, scopes, assertion) until shortly before it expires.
//
// # What this package must NOT do
//
//   - Read or write flow records. Exchange is stateless apart from the cache.
//   - Log tokens or assertions.
package obo

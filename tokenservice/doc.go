// Package tokenservice is a client for a user-token service: the hosted
// component that runs the provider OAuth dance for a bot and keeps each
// user's token per connection.
//
// The client covers the four calls a sign-in driver needs: fetch a stored
// token (optionally redeeming a magic code), fetch a sign-in link, exchange
// an SSO token, and sign out. Requests are retried on transient failures and
// can be authenticated with the bot's own app token.
package tokenservice

// Package activity models the inbound conversation activity and the per-turn
// context the authorization engine reads from.
//
// # Architecture boundaries
//
// The hosting SDK owns activity routing and transport. This package only
// defines the data the engine needs: channel and user identity, the inbound
// [Activity] (kept as a flow's continuation activity), and the ability to
// send a reply such as a sign-in card.
//
// # What this package must NOT do
//
//   - Import agentAuth or any sibling package.
//   - Interpret sign-in payloads (that belongs to OAuthFlow drivers).
package activity

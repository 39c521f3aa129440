// Package agentAuth runs per-user OAuth sign-in flows for conversational
// agents.
//
// A sign-in spans several turns: the agent sends a sign-in card, the user
// authenticates somewhere else, and a later message or invoke activity
// carries the proof back. [Authorization] tracks each (channel, user,
// handler) flow in a shared [storage.Storage] and moves it through the
// states defined in package flow, enforcing a timeout and a retry budget.
// Providers are reached through the [OAuthFlow] driver registered for each
// [AuthHandler]; tokens for downstream APIs come from an [OBOProvider].
//
// # Architecture boundaries
//
// agentAuth is the public surface: [Authorization], [Builder], [Config] and
// the collaborator interfaces. Record keys and encoding live under
// internal/stores and package flow.
//
// # What this package must NOT do
//
//   - Hold in-process locks or timers for flow state. All coordination goes
//     through storage versions, and expiry is evaluated lazily.
//   - Persist or log user tokens outside the flow record.
//   - Import oauthflow, obo or middleware (they import this package).
package agentAuth

// Package middleware exposes turn middleware that routes conversation
// activities through an [agentAuth.Authorization].
//
// # Middleware
//
//   - [AutoSignIn] continues an active sign-in, or fetches a token and begins
//     a flow when the user has none. The wrapped handler only runs once a
//     token is available, and receives it through [TokenFromContext].
//   - [EndOfConversation] clears flow records when a conversation ends.
//   - [SignOutCommand] signs the user out when a message matches a command.
//
// # Architecture boundaries
//
// This package translates turns into Authorization calls. It does NOT talk to
// providers or storage itself; flow decisions are delegated to the engine.
//
// # What this package must NOT do
//
//   - Persist tokens. The token lives in the context of one turn.
//   - Retry a failed flow. Only sign-out clears a failure.
package middleware

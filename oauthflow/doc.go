// Package oauthflow provides [UserTokenFlow], an [agentAuth.OAuthFlow]
// driver backed by a user-token service.
//
// Beginning a flow sends an OAuth sign-in card to the user unless the
// service already holds a token. A flow is continued by any of:
//
//   - a message whose text is the six-digit magic code shown after sign-in;
//   - a signin/verifyState invoke carrying that code;
//   - a signin/tokenExchange invoke carrying an SSO token.
package oauthflow

package tokenservice

import (
	"fmt"
	"net/http"
	"time"
)

// TokenResponse is a user token held by the service.
type TokenResponse struct {
	ChannelID      string    `json:"channelId,omitempty"`
	ConnectionName string    `json:"connectionName"`
	Token          string    `json:"token"`
	Expiration     time.Time `json:"expiration,omitzero"`
}

// TokenExchangeResource describes where a channel can obtain an SSO token
// to exchange silently.
type TokenExchangeResource struct {
	ID         string `json:"id,omitempty"`
	URI        string `json:"uri,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// SignInResource is what a sign-in card needs.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
}

// SignInState identifies the conversation a sign-in link completes into.
// It is sent to the service as base64-encoded JSON.
type SignInState struct {
	ConnectionName string `json:"connectionName"`
	ChannelID      string `json:"channelId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
	ServiceURL     string `json:"serviceUrl,omitempty"`
	AppID          string `json:"msAppId,omitempty"`
}

// ExchangeRequest carries either an SSO token or a resource URI to exchange.
type ExchangeRequest struct {
	URI   string `json:"uri,omitempty"`
	Token string `json:"token,omitempty"`
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("token service: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("token service: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsThrottled reports a 429 response.
func (e *StatusError) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

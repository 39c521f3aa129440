package oauthflow

import (
	"encoding/json"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/tokenservice"
)

// ContentTypeOAuthCard is the attachment content type of a sign-in card.
const ContentTypeOAuthCard = "application/vnd.microsoft.card.oauth"

// CardAction is a button on a sign-in card.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// OAuthCard is the content of a sign-in card attachment.
type OAuthCard struct {
	Text                  string                              `json:"text,omitempty"`
	ConnectionName        string                              `json:"connectionName"`
	Buttons               []CardAction                        `json:"buttons"`
	TokenExchangeResource *tokenservice.TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
}

func newSignInCard(connectionName, title, text string, res *tokenservice.SignInResource) (activity.Attachment, error) {
	if title == "" {
		title = "Sign in"
	}
	card := OAuthCard{
		Text:           text,
		ConnectionName: connectionName,
		Buttons: []CardAction{{
			Type:  "signin",
			Title: title,
			Value: res.SignInLink,
		}},
		TokenExchangeResource: res.TokenExchangeResource,
	}
	raw, err := json.Marshal(card)
	if err != nil {
		return activity.Attachment{}, err
	}
	return activity.Attachment{ContentType: ContentTypeOAuthCard, Content: raw}, nil
}

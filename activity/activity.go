package activity

import (
	"bytes"
	"encoding/json"
)

// Activity types the engine and its drivers care about.
const (
	TypeMessage           = "message"
	TypeInvoke            = "invoke"
	TypeEndOfConversation = "endOfConversation"
)

// Invoke names used by channels to deliver sign-in results.
const (
	InvokeVerifyState   = "signin/verifyState"
	InvokeTokenExchange = "signin/tokenExchange"
)

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
}

// Attachment carries typed card content such as an OAuth sign-in card.
type Attachment struct {
	ContentType string          `json:"contentType"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// Activity is the inbound (or outbound) conversation event.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Text         string              `json:"text,omitempty"`
	Name         string              `json:"name,omitempty"`
	Value        json.RawMessage     `json:"value,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty"`
}

// Clone returns a deep copy. A nil receiver clones to nil.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	out := *a
	out.Value = cloneRaw(a.Value)
	if a.Attachments != nil {
		out.Attachments = make([]Attachment, len(a.Attachments))
		for i, att := range a.Attachments {
			out.Attachments[i] = Attachment{
				ContentType: att.ContentType,
				Content:     cloneRaw(att.Content),
			}
		}
	}
	return &out
}

// Equal reports whether two activities carry the same content.
func (a *Activity) Equal(other *Activity) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.Type != other.Type ||
		a.ID != other.ID ||
		a.ChannelID != other.ChannelID ||
		a.ServiceURL != other.ServiceURL ||
		a.From != other.From ||
		a.Recipient != other.Recipient ||
		a.Conversation != other.Conversation ||
		a.ReplyToID != other.ReplyToID ||
		a.Text != other.Text ||
		a.Name != other.Name ||
		!bytes.Equal(a.Value, other.Value) ||
		len(a.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range a.Attachments {
		if a.Attachments[i].ContentType != other.Attachments[i].ContentType ||
			!bytes.Equal(a.Attachments[i].Content, other.Attachments[i].Content) {
			return false
		}
	}
	return true
}

// IsInvoke reports whether the activity is an invoke with the given name.
func (a *Activity) IsInvoke(name string) bool {
	return a != nil && a.Type == TypeInvoke && a.Name == name
}

// Reply builds an outbound message addressed back to the sender of a.
func (a *Activity) Reply(text string) *Activity {
	if a == nil {
		return &Activity{Type: TypeMessage, Text: text}
	}
	return &Activity{
		Type:         TypeMessage,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
		Text:         text,
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

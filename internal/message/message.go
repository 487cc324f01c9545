package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Platform identifies the channel a message arrived on.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformWebchat   Platform = "webchat"
)

// ErrUnknownPlatform is returned when an envelope names a platform this
// build does not handle.
var ErrUnknownPlatform = errors.New("message: unknown platform")

// ParsePlatform validates a platform tag from a URL or payload.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformWhatsApp, PlatformInstagram, PlatformWebchat:
		return Platform(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// WhatsAppPayload is an inbound WhatsApp Business message.
type WhatsAppPayload struct {
	From        string `json:"from"`         // sender phone, E.164
	To          string `json:"to"`           // business phone the message hit
	Text        string `json:"text"`
	MediaURL    string `json:"media_url,omitempty"`
	WAMessageID string `json:"wa_message_id,omitempty"`
	Timestamp   int64  `json:"timestamp"` // unix ms
}

// InstagramPayload is an inbound Instagram DM.
type InstagramPayload struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	StoryURL    string `json:"story_url,omitempty"` // set for story replies
	Timestamp   int64  `json:"timestamp"`
}

// WebchatPayload is a message from the embedded web widget.
type WebchatPayload struct {
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id"`
	Text      string `json:"text"`
	PageURL   string `json:"page_url,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Envelope is the tagged union carried through the queue: a platform
// discriminator plus exactly one populated payload. The queue treats the
// whole envelope as opaque bytes; only intake and workers decode it.
type Envelope struct {
	Platform  Platform          `json:"platform"`
	WhatsApp  *WhatsAppPayload  `json:"whatsapp,omitempty"`
	Instagram *InstagramPayload `json:"instagram,omitempty"`
	Webchat   *WebchatPayload   `json:"webchat,omitempty"`
}

// Decode parses raw webhook bytes for the given platform into an Envelope.
func Decode(platform Platform, raw []byte) (*Envelope, error) {
	env := &Envelope{Platform: platform}
	var err error
	switch platform {
	case PlatformWhatsApp:
		var p WhatsAppPayload
		err = json.Unmarshal(raw, &p)
		env.WhatsApp = &p
	case PlatformInstagram:
		var p InstagramPayload
		err = json.Unmarshal(raw, &p)
		env.Instagram = &p
	case PlatformWebchat:
		var p WebchatPayload
		err = json.Unmarshal(raw, &p)
		env.Webchat = &p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", platform, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks that the discriminator matches the populated payload and
// the required addressing fields are present.
func (e *Envelope) Validate() error {
	switch e.Platform {
	case PlatformWhatsApp:
		if e.WhatsApp == nil {
			return errors.New("message: whatsapp envelope without payload")
		}
		if e.WhatsApp.From == "" || e.WhatsApp.To == "" {
			return errors.New("message: whatsapp payload missing from/to")
		}
	case PlatformInstagram:
		if e.Instagram == nil {
			return errors.New("message: instagram envelope without payload")
		}
		if e.Instagram.SenderID == "" || e.Instagram.RecipientID == "" {
			return errors.New("message: instagram payload missing sender/recipient")
		}
	case PlatformWebchat:
		if e.Webchat == nil {
			return errors.New("message: webchat envelope without payload")
		}
		if e.Webchat.SessionID == "" {
			return errors.New("message: webchat payload missing session id")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, e.Platform)
	}
	return nil
}

// PartitionKey derives the recipient-channel identifier the queue partitions
// on: one conversation, one partition.
func (e *Envelope) PartitionKey() string {
	switch e.Platform {
	case PlatformWhatsApp:
		return fmt.Sprintf("wa:%s:%s", e.WhatsApp.To, e.WhatsApp.From)
	case PlatformInstagram:
		return fmt.Sprintf("ig:%s:%s", e.Instagram.RecipientID, e.Instagram.SenderID)
	case PlatformWebchat:
		return "web:" + e.Webchat.SessionID
	}
	return ""
}

// Sender returns the platform-specific sender address.
func (e *Envelope) Sender() string {
	switch e.Platform {
	case PlatformWhatsApp:
		return e.WhatsApp.From
	case PlatformInstagram:
		return e.Instagram.SenderID
	case PlatformWebchat:
		return e.Webchat.VisitorID
	}
	return ""
}

// Text returns the message body.
func (e *Envelope) Text() string {
	switch e.Platform {
	case PlatformWhatsApp:
		return e.WhatsApp.Text
	case PlatformInstagram:
		return e.Instagram.Text
	case PlatformWebchat:
		return e.Webchat.Text
	}
	return ""
}

// Timestamp returns the platform-reported receive time in unix ms.
func (e *Envelope) Timestamp() int64 {
	switch e.Platform {
	case PlatformWhatsApp:
		return e.WhatsApp.Timestamp
	case PlatformInstagram:
		return e.Instagram.Timestamp
	case PlatformWebchat:
		return e.Webchat.Timestamp
	}
	return 0
}

package models

// ChannelType identifies a messaging channel family (cli, telegram, project).
type ChannelType string

const (
	ChannelCLI      ChannelType = "cli"
	ChannelTelegram ChannelType = "telegram"
	ChannelProject  ChannelType = "project"
)

// ChannelCoordinate is the identity tuple carried on every inbound and
// outbound message.
type ChannelCoordinate struct {
	Type      ChannelType `json:"type"`
	ChannelID string      `json:"channel_id"`
	UserID    string      `json:"user_id,omitempty"`
	ReplyTo   string      `json:"reply_to,omitempty"`
}

// Inbound is a message entering the system from a channel adapter.
type Inbound struct {
	Text     string            `json:"text"`
	Channel  ChannelCoordinate `json:"channel"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Outbound is a reply leaving the system toward a channel adapter.
type Outbound struct {
	Text    string            `json:"text"`
	Channel ChannelCoordinate `json:"channel"`
}

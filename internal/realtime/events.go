package realtime

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Client-to-server event names.
const (
	EventMessageSend    = "message:send"
	EventMessageUpdate  = "message:update"
	EventMessageDelete  = "message:delete"
	EventReactionAdd    = "reaction:add"
	EventReactionRemove = "reaction:remove"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventChannelJoin    = "channel:join"
	EventChannelLeave   = "channel:leave"
)

// Server-to-client event names.
const (
	EventMessageNew      = "message:new"
	EventMessageUpdated  = "message:updated"
	EventMessageDeleted  = "message:deleted"
	EventReactionAdded   = "reaction:added"
	EventReactionRemoved = "reaction:removed"
	EventTypingUser      = "typing:user"
	EventUserStatus      = "user:status"
	EventError           = "error"
)

// Envelope is the wire frame for every socket event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// encodeEvent marshals a server-to-client frame.
func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

type SendMessagePayload struct {
	ChannelID string  `json:"channelId"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parentId"`
}

func (p *SendMessagePayload) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("channelId is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

type UpdateMessagePayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

func (p *UpdateMessagePayload) Validate() error {
	if p.MessageID == "" {
		return fmt.Errorf("messageId is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

func (p *DeleteMessagePayload) Validate() error {
	if p.MessageID == "" {
		return fmt.Errorf("messageId is required")
	}
	return nil
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

func (p *ReactionPayload) Validate() error {
	if p.MessageID == "" {
		return fmt.Errorf("messageId is required")
	}
	if p.Emoji == "" {
		return fmt.Errorf("emoji is required")
	}
	return nil
}

type TypingPayload struct {
	ChannelID string `json:"channelId"`
}

func (p *TypingPayload) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("channelId is required")
	}
	return nil
}

type ChannelSubPayload struct {
	ChannelID string `json:"channelId"`
}

func (p *ChannelSubPayload) Validate() error {
	if p.ChannelID == "" {
		return fmt.Errorf("channelId is required")
	}
	return nil
}

// TypingEvent is relayed to channel members while someone types.
type TypingEvent struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Typing    bool   `json:"typing"`
}

// StatusEvent announces presence transitions to workspace rooms.
type StatusEvent struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ErrorEvent is sent back to a single client when its event fails.
type ErrorEvent struct {
	Message string `json:"message"`
}

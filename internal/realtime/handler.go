package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"teamchat/internal/message"
	"teamchat/internal/middleware"
	"teamchat/internal/user"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const eventTimeout = 5 * time.Second

// MessageService handles message writes originated over the socket.
// Broadcasts happen inside the service so REST and socket writes emit
// the same events.
type MessageService interface {
	Send(ctx context.Context, authorID, channelID string, req *message.SendRequest) (*message.Message, error)
	Edit(ctx context.Context, userID, messageID, content string) (*message.Message, error)
	Delete(ctx context.Context, userID, messageID string) error
	AddReaction(ctx context.Context, userID, messageID, emoji string) (*message.Reaction, error)
	RemoveReaction(ctx context.Context, userID, messageID, emoji string) error
}

// UserService resolves the connecting user and records presence status.
type UserService interface {
	GetSelf(ctx context.Context, userID string) (*user.User, error)
	SetStatus(ctx context.Context, userID, status string) error
}

// MembershipLister supplies the rooms a user is subscribed to at
// connect time.
type MembershipLister interface {
	WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error)
	ChannelIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// ChannelAccess answers channel visibility for subscription changes.
// Public channels are visible to everyone in the workspace, so joining
// a room does not require membership.
type ChannelAccess interface {
	IsVisible(ctx context.Context, channelID, userID string) (bool, error)
}

type Gateway struct {
	hub      *Hub
	presence *Presence
	messages MessageService
	users    UserService
	members  MembershipLister
	channels ChannelAccess
	log      zerolog.Logger
}

func NewGateway(hub *Hub, presence *Presence, messages MessageService,
	users UserService, members MembershipLister, channels ChannelAccess,
	log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		presence: presence,
		messages: messages,
		users:    users,
		members:  members,
		channels: channels,
		log:      log,
	}
}

// ServeWS upgrades the connection and registers the client with the hub.
// Memberships are resolved before the upgrade so a failed lookup means a
// plain HTTP error and no partial subscription.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := g.users.GetSelf(r.Context(), userID)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	workspaceIDs, err := g.members.WorkspaceIDsForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to resolve memberships", http.StatusInternalServerError)
		return
	}
	channelIDs, err := g.members.ChannelIDsForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to resolve memberships", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		gateway:    g,
		conn:       conn,
		send:       make(chan []byte, 256),
		userID:     userID,
		username:   u.Username,
		connID:     uuid.NewString(),
		workspaces: workspaceIDs,
		rooms:      make(map[string]bool),
	}

	g.hub.register <- client
	for _, id := range workspaceIDs {
		g.hub.Subscribe(client, workspaceRoom(id))
		client.trackRoom(workspaceRoom(id))
	}
	for _, id := range channelIDs {
		g.hub.Subscribe(client, channelRoom(id))
		client.trackRoom(channelRoom(id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	cameOnline, err := g.presence.Connect(ctx, userID, client.connID)
	if err != nil {
		g.log.Error().Err(err).Str("user_id", userID).Msg("presence connect failed")
	} else if cameOnline {
		g.setStatus(ctx, client, user.StatusOnline)
	}

	g.log.Info().Str("user_id", userID).Str("conn_id", client.connID).Msg("websocket connected")

	go client.writePump()
	go client.readPump()
}

func (g *Gateway) disconnect(c *Client) {
	g.hub.unregister <- c

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	wentOffline, err := g.presence.Disconnect(ctx, c.userID, c.connID)
	if err != nil {
		g.log.Error().Err(err).Str("user_id", c.userID).Msg("presence disconnect failed")
		return
	}
	if wentOffline {
		g.setStatus(ctx, c, user.StatusOffline)
	}

	g.log.Info().Str("user_id", c.userID).Str("conn_id", c.connID).Msg("websocket disconnected")
}

// setStatus persists the presence transition and announces it to every
// workspace the user belongs to.
func (g *Gateway) setStatus(ctx context.Context, c *Client, status string) {
	if err := g.users.SetStatus(ctx, c.userID, status); err != nil {
		g.log.Error().Err(err).Str("user_id", c.userID).Msg("failed to persist status")
	}
	for _, id := range c.workspaces {
		g.hub.BroadcastToWorkspace(id, EventUserStatus, StatusEvent{
			UserID: c.userID,
			Status: status,
		})
	}
}

// dispatch validates and executes one client frame.
func (g *Gateway) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("malformed event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case EventMessageSend:
		var p SendMessagePayload
		if !decode(c, env.Data, &p) {
			return
		}
		_, err := g.messages.Send(ctx, c.userID, p.ChannelID, &message.SendRequest{
			Content:  p.Content,
			ParentID: p.ParentID,
		})
		g.reply(c, err)

	case EventMessageUpdate:
		var p UpdateMessagePayload
		if !decode(c, env.Data, &p) {
			return
		}
		_, err := g.messages.Edit(ctx, c.userID, p.MessageID, p.Content)
		g.reply(c, err)

	case EventMessageDelete:
		var p DeleteMessagePayload
		if !decode(c, env.Data, &p) {
			return
		}
		g.reply(c, g.messages.Delete(ctx, c.userID, p.MessageID))

	case EventReactionAdd:
		var p ReactionPayload
		if !decode(c, env.Data, &p) {
			return
		}
		_, err := g.messages.AddReaction(ctx, c.userID, p.MessageID, p.Emoji)
		g.reply(c, err)

	case EventReactionRemove:
		var p ReactionPayload
		if !decode(c, env.Data, &p) {
			return
		}
		g.reply(c, g.messages.RemoveReaction(ctx, c.userID, p.MessageID, p.Emoji))

	case EventTypingStart, EventTypingStop:
		var p TypingPayload
		if !decode(c, env.Data, &p) {
			return
		}
		g.typing(c, p.ChannelID, env.Event == EventTypingStart)

	case EventChannelJoin:
		var p ChannelSubPayload
		if !decode(c, env.Data, &p) {
			return
		}
		visible, err := g.channels.IsVisible(ctx, p.ChannelID, c.userID)
		if err != nil {
			c.sendError("request failed")
			return
		}
		if !visible {
			c.sendError("channel not found")
			return
		}
		g.hub.Subscribe(c, channelRoom(p.ChannelID))
		c.trackRoom(channelRoom(p.ChannelID))

	case EventChannelLeave:
		var p ChannelSubPayload
		if !decode(c, env.Data, &p) {
			return
		}
		g.hub.Unsubscribe(c, channelRoom(p.ChannelID))
		c.untrackRoom(channelRoom(p.ChannelID))

	default:
		c.sendError("unknown event: " + env.Event)
	}
}

// typing relays a typing indicator to everyone in the channel room
// except the sender.
func (g *Gateway) typing(c *Client, channelID string, typing bool) {
	room := channelRoom(channelID)
	if !c.inRoom(room) {
		c.sendError("you are not subscribed to this channel")
		return
	}

	payload, err := encodeEvent(EventTypingUser, TypingEvent{
		ChannelID: channelID,
		UserID:    c.userID,
		Username:  c.username,
		Typing:    typing,
	})
	if err != nil {
		return
	}
	g.hub.Publish(room, c.connID, payload)
}

func decode(c *Client, data json.RawMessage, p interface{ Validate() error }) bool {
	if len(data) == 0 {
		c.sendError("missing event payload")
		return false
	}
	if err := json.Unmarshal(data, p); err != nil {
		c.sendError("malformed event payload")
		return false
	}
	if err := p.Validate(); err != nil {
		c.sendError(err.Error())
		return false
	}
	return true
}

// reply surfaces service failures to the originating client. Successes
// are silent; the resulting broadcast is the acknowledgement.
func (g *Gateway) reply(c *Client, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, message.ErrValidation),
		errors.Is(err, message.ErrForbidden),
		errors.Is(err, message.ErrNotAuthor),
		errors.Is(err, message.ErrNotFound),
		errors.Is(err, message.ErrReactionExists),
		errors.Is(err, message.ErrReactionNotFound):
		c.sendError(err.Error())
	default:
		g.log.Error().Err(err).Str("user_id", c.userID).Msg("socket event failed")
		c.sendError("request failed")
	}
}

package realtime

import (
	"github.com/rs/zerolog"

	"teamchat/internal/metrics"
)

func channelRoom(channelID string) string { return "channel:" + channelID }

func workspaceRoom(workspaceID string) string { return "workspace:" + workspaceID }

// BroadcastMessage carries an encoded frame to every subscriber of a
// room, optionally skipping one connection.
type BroadcastMessage struct {
	Room    string
	Exclude string // connection id to skip, empty for none
	Payload []byte
}

type subscription struct {
	client *Client
	room   string
}

// Hub routes frames between room subscribers. All room state is owned by
// the Run goroutine; other goroutines communicate over channels.
type Hub struct {
	rooms map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan *BroadcastMessage

	relay *Relay
	log   zerolog.Logger
}

func NewHub(relay *Relay, log zerolog.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan *BroadcastMessage, 64),
		relay:       relay,
		log:         log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.register:
			metrics.ConnectionsActive.Inc()

		case client := <-h.unregister:
			h.drop(client)

		case sub := <-h.subscribe:
			// A client dropped between registering and subscribing must
			// not re-enter a room with a closed send channel.
			if sub.client.dropped {
				continue
			}
			if h.rooms[sub.room] == nil {
				h.rooms[sub.room] = make(map[*Client]bool)
			}
			h.rooms[sub.room][sub.client] = true

		case sub := <-h.unsubscribe:
			if clients, ok := h.rooms[sub.room]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.rooms, sub.room)
				}
			}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.Room] {
				if msg.Exclude != "" && client.connID == msg.Exclude {
					continue
				}
				if !client.enqueue(msg.Payload) {
					// Slow consumer; drop the connection rather than
					// block the hub.
					metrics.BroadcastsDropped.Inc()
					h.drop(client)
				}
			}
		}
	}
}

// drop removes the client from every room and closes its send channel.
// Rooms are always swept so a stale entry cannot linger after a
// repeated drop.
func (h *Hub) drop(client *Client) {
	for room, clients := range h.rooms {
		if clients[client] {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	if client.dropped {
		return
	}
	client.dropped = true
	client.closeSend()
	metrics.ConnectionsActive.Dec()
}

// Subscribe adds the client to a room.
func (h *Hub) Subscribe(client *Client, room string) {
	h.subscribe <- subscription{client: client, room: room}
}

// Unsubscribe removes the client from a room.
func (h *Hub) Unsubscribe(client *Client, room string) {
	h.unsubscribe <- subscription{client: client, room: room}
}

// Publish fans a frame out to a room across every hub instance. With no
// relay configured the frame is delivered locally.
func (h *Hub) Publish(room, exclude string, payload []byte) {
	if h.relay != nil {
		if err := h.relay.Publish(room, exclude, payload); err != nil {
			h.log.Error().Err(err).Str("room", room).Msg("relay publish failed")
		}
		return
	}
	h.broadcast <- &BroadcastMessage{Room: room, Exclude: exclude, Payload: payload}
}

// deliver routes a relayed frame to local subscribers only.
func (h *Hub) deliver(msg *BroadcastMessage) {
	h.broadcast <- msg
}

// BroadcastToChannel publishes an event to a channel room. Used by REST
// handlers so their writes reach socket subscribers too.
func (h *Hub) BroadcastToChannel(channelID, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	metrics.EventsRelayed.WithLabelValues(event).Inc()
	h.Publish(channelRoom(channelID), "", payload)
}

// BroadcastToWorkspace publishes an event to a workspace room.
func (h *Hub) BroadcastToWorkspace(workspaceID, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	metrics.EventsRelayed.WithLabelValues(event).Inc()
	h.Publish(workspaceRoom(workspaceID), "", payload)
}

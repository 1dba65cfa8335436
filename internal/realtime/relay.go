package realtime

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const relayChannel = "teamchat:events"

// relayFrame is the envelope published on the Redis relay channel so
// events reach every hub instance.
type relayFrame struct {
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Relay fans frames out across hub instances over Redis pub/sub.
type Relay struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRelay(rdb *redis.Client, log zerolog.Logger) *Relay {
	return &Relay{rdb: rdb, log: log}
}

func (r *Relay) Publish(room, exclude string, payload []byte) error {
	frame, err := json.Marshal(relayFrame{Room: room, Exclude: exclude, Payload: payload})
	if err != nil {
		return err
	}
	return r.rdb.Publish(context.Background(), relayChannel, frame).Err()
}

// Run subscribes to the relay channel and feeds frames into the hub.
// Blocks until the subscription closes.
func (r *Relay) Run(ctx context.Context, hub *Hub) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		var frame relayFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			r.log.Error().Err(err).Msg("malformed relay frame")
			continue
		}
		hub.deliver(&BroadcastMessage{
			Room:    frame.Room,
			Exclude: frame.Exclude,
			Payload: frame.Payload,
		})
	}
}

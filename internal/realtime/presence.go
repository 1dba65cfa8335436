package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// connSetTTL bounds how long a stale connection set can linger when an
// instance dies without cleaning up.
const connSetTTL = 24 * time.Hour

// Presence tracks which connections each user has open. A user is online
// while their connection set is non-empty; the set lives in Redis so
// every instance sees the same answer.
type Presence struct {
	rdb *redis.Client
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

func connSetKey(userID string) string { return "user:" + userID + ":conns" }

// Connect records a new connection and reports whether the user just
// came online (first connection in the set).
func (p *Presence) Connect(ctx context.Context, userID, connID string) (bool, error) {
	key := connSetKey(userID)
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, connSetTTL)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() == 1, nil
}

// Disconnect removes a connection and reports whether the user went
// offline (set emptied).
func (p *Presence) Disconnect(ctx context.Context, userID, connID string) (bool, error) {
	key := connSetKey(userID)
	pipe := p.rdb.TxPipeline()
	pipe.SRem(ctx, key, connID)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() == 0, nil
}

// IsOnline reports whether the user has any open connection.
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.SCard(ctx, connSetKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

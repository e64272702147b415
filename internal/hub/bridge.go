package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge relays accepted broadcasts between instances over a redis pub/sub
// channel, so editors connected to different processes converge on the same
// document. Each instance tags what it publishes with its own origin id and
// skips its own messages on the way back in.
type Bridge struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *slog.Logger
}

type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// NewBridge connects to redis and verifies it is reachable.
func NewBridge(ctx context.Context, addr, channel string, log *slog.Logger) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Bridge{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}, nil
}

// publish mirrors an accepted broadcast to the other instances. Failures are
// logged and otherwise ignored: local delivery already happened and the
// client is responsible for any retry.
func (b *Bridge) publish(evt Event) {
	payload, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Event: evt})
	if err != nil {
		b.log.Error("marshal bridge envelope", "event", evt.Event, "error", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		b.log.Error("publish to redis", "event", evt.Event, "error", err)
	}
}

// run subscribes and forwards remote events into the hub until ctx ends.
func (b *Bridge) run(ctx context.Context, apply func(context.Context, Event)) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	for {
		select {
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Debug("malformed bridge envelope dropped", "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			apply(ctx, env.Event)
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the redis connection.
func (b *Bridge) Close() error {
	return b.rdb.Close()
}

package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Redis publishes events on a pub/sub channel so that every API instance, and
// the watcher process, see the same stream. Local subscribers are served from
// a single channel subscription per process.
type Redis struct {
	Client  *redis.Client
	Channel string
	Log     logrus.FieldLogger

	local *Local
}

func NewRedis(client *redis.Client, channel string, log logrus.FieldLogger) *Redis {
	return &Redis{Client: client, Channel: channel, Log: log, local: NewLocal()}
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, r.Channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, bookingID string) (<-chan Event, func()) {
	return r.local.Subscribe(ctx, bookingID)
}

// Run relays the Redis channel to local subscribers until ctx is done.
func (r *Redis) Run(ctx context.Context) {
	ps := r.Client.Subscribe(ctx, r.Channel)
	defer ps.Close()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.Log.WithError(err).Warn("dropping malformed booking event")
				continue
			}
			r.local.deliver(ev)
		}
	}
}

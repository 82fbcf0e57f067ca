package kds

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// RedisRelay shares hub broadcasts between service instances over a redis
// pub/sub channel. Messages published by this instance are ignored when
// they come back.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        *Hub
}

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub) *RedisRelay {
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		hub:        hub,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, payload []byte) error {
	data, err := json.Marshal(envelope{Origin: r.instanceID, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "encode relay envelope")
	}
	return errors.Wrapf(r.client.Publish(ctx, r.channel, data).Err(), "publish to %s", r.channel)
}

// Run delivers messages from other instances to the local hub until ctx is
// cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to %s", r.channel)
	}
	utils.InfoLogger.Infof("Relaying staff updates over redis channel %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		utils.InfoLogger.Warnf("Ignoring malformed relay message: %v", err)
		return
	}
	if env.Origin == r.instanceID || len(env.Payload) == 0 {
		return
	}
	r.hub.deliver(env.Payload)
}

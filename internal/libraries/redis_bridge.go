package libraries

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomChannelPrefix = "kalam:room:"

type bridgeEnvelope struct {
	Origin string          `json:"origin"`
	RoomID RoomID          `json:"roomId"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBridge shares fan-out frames between relay processes through Redis
// pub/sub, one channel per room. Frames published by this process are ignored
// when they come back.
type RedisBridge struct {
	rdb    *redis.Client
	origin string
}

func NewRedisBridge(rdb *redis.Client) *RedisBridge {
	return &RedisBridge{rdb: rdb, origin: uuid.NewString()}
}

func roomChannel(roomID RoomID) string {
	return roomChannelPrefix + roomID.String()
}

func (b *RedisBridge) Publish(ctx context.Context, roomID RoomID, frame []byte) error {
	payload, err := json.Marshal(bridgeEnvelope{Origin: b.origin, RoomID: roomID, Frame: frame})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, roomChannel(roomID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to every room channel and hands frames from other processes
// to deliver until ctx is done.
func (b *RedisBridge) Run(ctx context.Context, deliver func(RoomID, []byte) int) error {
	pubsub := b.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("bad bridge envelope")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			if env.RoomID == "" {
				env.RoomID = RoomID(strings.TrimPrefix(msg.Channel, roomChannelPrefix))
			}
			deliver(env.RoomID, env.Frame)
		}
	}
}

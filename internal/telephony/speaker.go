package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSayChannelPrefix is prepended to the room name to form the say channel
const DefaultSayChannelPrefix = "support:say:"

type publisher interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

// SayRequest asks the speech pipeline serving a room to speak text
type SayRequest struct {
	RoomName    string    `json:"room_name"`
	Text        string    `json:"text"`
	RequestedAt time.Time `json:"requested_at"`
}

// RedisSpeaker hands utterances to the speech pipeline over Redis pub/sub.
// Delivery is fire-and-forget: nobody listening is not an error.
type RedisSpeaker struct {
	pub    publisher
	prefix string
}

// NewRedisSpeaker creates a speaker publishing on prefix+room
func NewRedisSpeaker(pub publisher, prefix string) *RedisSpeaker {
	if prefix == "" {
		prefix = DefaultSayChannelPrefix
	}
	return &RedisSpeaker{pub: pub, prefix: prefix}
}

// Say implements session.Speaker
func (rs *RedisSpeaker) Say(ctx context.Context, room, text string) error {
	msg, err := json.Marshal(SayRequest{RoomName: room, Text: text, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal say request: %w", err)
	}
	return rs.pub.Publish(ctx, rs.prefix+room, msg)
}

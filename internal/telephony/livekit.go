package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
)

type roomDeleter interface {
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
}

// LiveKitTerminator ends a call by deleting its LiveKit room, which
// disconnects every participant including the SIP leg.
type LiveKitTerminator struct {
	rooms roomDeleter
}

// NewLiveKitTerminator creates a terminator using the LiveKit room service
func NewLiveKitTerminator(url, apiKey, apiSecret string) *LiveKitTerminator {
	return &LiveKitTerminator{rooms: lksdk.NewRoomServiceClient(url, apiKey, apiSecret)}
}

// Terminate implements session.Terminator. A room that is already gone counts as terminated.
func (lt *LiveKitTerminator) Terminate(ctx context.Context, room string) error {
	_, err := lt.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: room})
	if err == nil || isNotFound(err) {
		return nil
	}
	return fmt.Errorf("failed to delete room %s: %w", room, err)
}

func isNotFound(err error) bool {
	var terr twirp.Error
	return errors.As(err, &terr) && terr.Code() == twirp.NotFound
}

package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// Realtime pushes in-app updates to buyers over their private channel.
type Realtime struct {
	pn *pubnub.PubNub
}

func NewRealtime(pn *pubnub.PubNub) *Realtime {
	return &Realtime{pn: pn}
}

// NotifyUser publishes a message on the user's channel. Delivery is best
// effort; a publish failure never blocks the payment flow.
func (r *Realtime) NotifyUser(userID string, message map[string]any) {
	if r == nil || r.pn == nil {
		return
	}

	channel := fmt.Sprintf("user-%s", userID)
	_, _, err := r.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Error("publish realtime update", "channel", channel, "error", err)
	}
}

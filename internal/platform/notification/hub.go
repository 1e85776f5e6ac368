package notification

import (
	"context"

	"github.com/medconnect/medconnect/internal/platform/websocket"
)

// HubPublisher pushes events to the recipient's live notification sockets.
// Users without an open socket simply miss the live frame.
type HubPublisher struct {
	hub *websocket.Hub
}

func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, ev Event) error {
	_, err := p.hub.Broadcast(websocket.UserTopic(ev.UserID), ev)
	return err
}

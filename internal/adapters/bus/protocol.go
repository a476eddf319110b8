package bus

import "encoding/json"

// Wire protocol between the hub and its subscribers. One JSON frame per
// websocket message.
const (
	frameConnEstablished = "connection_established"
	frameSubscribe       = "subscribe"
	frameUnsubscribe     = "unsubscribe"
	frameSubSucceeded    = "subscription_succeeded"
	frameSubError        = "subscription_error"
	frameMemberAdded     = "member_added"
	frameMemberRemoved   = "member_removed"
	framePing            = "ping"
	framePong            = "pong"
)

type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// outFrame is the marshal-side twin of frame; Data stays structured until
// the last moment.
type outFrame struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// subscribeData carries the channel name plus the grant issued by /auth.
type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

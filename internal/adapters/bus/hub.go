// Package bus is the in-process pub/sub transport: a presence-aware hub
// speaking the subscribe/publish protocol over websockets. Deployments that
// point at a hosted bus instead only need another core.Bus implementation.
package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/app"
	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// subscriber is one socket on one channel. member is nil on private channels.
type subscriber struct {
	conn   *wsConn
	userID domain.UserID
	member *domain.MemberInfo
}

// Hub tracks connections and per-channel subscribers. The presence roster is
// derived state only: it exists exactly as long as the subscriptions live.
type Hub struct {
	key        string
	secret     string
	readLimit  int64
	pingPeriod time.Duration

	mu       sync.RWMutex
	conns    map[core.SocketID]*wsConn
	channels map[string]map[core.SocketID]*subscriber
}

func NewHub(key, secret string, readLimit int64, pingPeriod time.Duration) *Hub {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Hub{
		key:        key,
		secret:     secret,
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		conns:      make(map[core.SocketID]*wsConn),
		channels:   make(map[string]map[core.SocketID]*subscriber),
	}
}

var _ core.Bus = (*Hub)(nil)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades one client connection and serves it until it drops.
func (h *Hub) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "bus").Msg("ws upgrade")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	sid := core.SocketID(uuid.NewString())
	conn := newWSConn(sid, ws)

	h.mu.Lock()
	h.conns[sid] = conn
	h.mu.Unlock()
	log.Info().Str("module", "bus").Str("socket", string(sid)).Msg("connection established")

	conn.sendJSON(outFrame{Event: frameConnEstablished, Data: map[string]string{"socket_id": string(sid)}})

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		conn.writePump(ctx, h.pingPeriod)
		cancel()
	}()
	h.readPump(ctx, conn)
	cancel()
	h.dropConn(conn)
}

func (h *Hub) readPump(ctx context.Context, conn *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "bus").Str("socket", string(conn.id)).Msg("readPump closing")
			return
		}
		h.handleFrame(conn, data)
	}
}

func (h *Hub) handleFrame(conn *wsConn, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn().Err(err).Str("module", "bus").Msg("bad frame")
		return
	}
	switch f.Event {
	case frameSubscribe:
		h.handleSubscribe(conn, f.Data)
	case frameUnsubscribe:
		var p unsubscribeData
		if err := json.Unmarshal(f.Data, &p); err == nil {
			h.unsubscribe(conn, p.Channel)
		}
	case framePing:
		conn.sendJSON(outFrame{Event: framePong})
	default:
		log.Warn().Str("module", "bus").Str("event", f.Event).Msg("unknown frame")
	}
}

func (h *Hub) handleSubscribe(conn *wsConn, data []byte) {
	var p subscribeData
	if err := json.Unmarshal(data, &p); err != nil || p.Channel == "" {
		conn.sendJSON(outFrame{Event: frameSubError, Channel: p.Channel, Data: map[string]string{"error": "bad_payload"}})
		return
	}

	// The grant binds socket, channel and member info together; a tampered
	// or replayed ticket fails here.
	if !app.VerifyGrant(h.key, h.secret, conn.id, p.Channel, p.ChannelData, p.Auth) {
		log.Warn().Str("module", "bus").Str("socket", string(conn.id)).Str("channel", p.Channel).Msg("grant rejected")
		conn.sendJSON(outFrame{Event: frameSubError, Channel: p.Channel, Data: map[string]string{"error": "invalid_grant"}})
		return
	}

	topic, err := domain.ParseTopic(p.Channel)
	if err != nil {
		conn.sendJSON(outFrame{Event: frameSubError, Channel: p.Channel, Data: map[string]string{"error": "invalid_channel"}})
		return
	}

	sub := &subscriber{conn: conn}
	if topic.Class == domain.ClassPresence {
		var pd struct {
			UserID   domain.UserID     `json:"user_id"`
			UserInfo domain.MemberInfo `json:"user_info"`
		}
		if err := json.Unmarshal([]byte(p.ChannelData), &pd); err != nil || pd.UserID == "" {
			conn.sendJSON(outFrame{Event: frameSubError, Channel: p.Channel, Data: map[string]string{"error": "missing_member_info"}})
			return
		}
		sub.userID = pd.UserID
		sub.member = &pd.UserInfo
	}

	h.mu.Lock()
	subs, ok := h.channels[p.Channel]
	if !ok {
		subs = make(map[core.SocketID]*subscriber)
		h.channels[p.Channel] = subs
	}
	firstForUser := sub.member != nil && !userPresentLocked(subs, sub.userID)
	subs[conn.id] = sub
	roster := rosterLocked(subs)
	h.mu.Unlock()

	conn.sendJSON(outFrame{Event: frameSubSucceeded, Channel: p.Channel, Data: map[string]any{"members": roster}})
	log.Info().Str("module", "bus").Str("socket", string(conn.id)).Str("channel", p.Channel).Msg("subscribed")

	// One member_added per identity, not per socket: a second tab joining
	// must not duplicate the roster entry at the observers.
	if firstForUser {
		h.broadcast(p.Channel, frameMemberAdded, map[string]any{"user_id": sub.userID, "user_info": sub.member}, conn.id)
	}
}

func (h *Hub) unsubscribe(conn *wsConn, channel string) {
	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	sub, ok := subs[conn.id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(subs, conn.id)
	lastForUser := sub.member != nil && !userPresentLocked(subs, sub.userID)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	h.mu.Unlock()

	log.Info().Str("module", "bus").Str("socket", string(conn.id)).Str("channel", channel).Msg("unsubscribed")
	if lastForUser {
		h.broadcast(channel, frameMemberRemoved, map[string]any{"user_id": sub.userID}, conn.id)
	}
}

// dropConn removes a dead socket from every channel. Leave notifications are
// best-effort and may lag the real disconnect by the read timeout.
func (h *Hub) dropConn(conn *wsConn) {
	h.mu.Lock()
	delete(h.conns, conn.id)
	type removal struct {
		channel string
		userID  domain.UserID
	}
	var removed []removal
	for channel, subs := range h.channels {
		sub, ok := subs[conn.id]
		if !ok {
			continue
		}
		delete(subs, conn.id)
		if sub.member != nil && !userPresentLocked(subs, sub.userID) {
			removed = append(removed, removal{channel: channel, userID: sub.userID})
		}
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mu.Unlock()

	conn.Close()
	for _, rm := range removed {
		h.broadcast(rm.channel, frameMemberRemoved, map[string]any{"user_id": rm.userID}, conn.id)
	}
	log.Info().Str("module", "bus").Str("socket", string(conn.id)).Msg("connection dropped")
}

// Publish implements core.Bus for the relay.
func (h *Hub) Publish(_ context.Context, topic, event string, payload any, exclude core.SocketID) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(frame{Event: event, Channel: topic, Data: raw})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.channels[topic]))
	for sid, sub := range h.channels[topic] {
		if exclude != "" && sid == exclude {
			continue
		}
		targets = append(targets, sub.conn)
	}
	h.mu.RUnlock()

	for _, t := range targets {
		if err := t.TrySend(b); err != nil {
			// Slow or dead subscriber; the roster catches up when the
			// socket drops. Delivery here is best-effort by design of
			// the transport boundary.
			log.Warn().Err(err).Str("module", "bus").Str("socket", string(t.id)).Str("topic", topic).Msg("delivery skipped")
		}
	}
	return nil
}

// broadcast is the internal variant of Publish for roster events.
func (h *Hub) broadcast(topic, event string, payload any, exclude core.SocketID) {
	if err := h.Publish(context.Background(), topic, event, payload, exclude); err != nil {
		log.Error().Err(err).Str("module", "bus").Str("topic", topic).Msg("broadcast")
	}
}

// ActiveTopics lists live topics matching prefix.
func (h *Hub) ActiveTopics(prefix string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for name, subs := range h.channels {
		if len(subs) == 0 {
			continue
		}
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, name)
		}
	}
	return out
}

// Roster returns the distinct members currently subscribed to a presence
// channel. Derived from live subscriptions only.
func (h *Hub) Roster(channel string) []domain.MemberInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return rosterLocked(h.channels[channel])
}

func rosterLocked(subs map[core.SocketID]*subscriber) []domain.MemberInfo {
	seen := make(map[domain.UserID]bool)
	out := make([]domain.MemberInfo, 0, len(subs))
	for _, sub := range subs {
		if sub.member == nil || seen[sub.userID] {
			continue
		}
		seen[sub.userID] = true
		out = append(out, *sub.member)
	}
	return out
}

func userPresentLocked(subs map[core.SocketID]*subscriber, uid domain.UserID) bool {
	for _, sub := range subs {
		if sub.member != nil && sub.userID == uid {
			return true
		}
	}
	return false
}

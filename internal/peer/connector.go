package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/domain"
)

// ErrNegotiationBusy means an exchange with that peer is already running.
// The caller waits for the current one to finish instead of offering again.
var ErrNegotiationBusy = errors.New("negotiation already in progress")

// SendFunc delivers one signal body to a remote peer through the relay.
type SendFunc func(ctx context.Context, to domain.UserID, signal json.RawMessage) error

// Connector drives one client's peer connections in a multi-party session.
// All offer/answer exchanges go through the NegotiationTable, so two sides
// offering at once resolve to a deferred replay instead of glare.
type Connector struct {
	self  domain.UserID
	table *NegotiationTable
	send  SendFunc
	rtc   webrtc.Configuration

	mu    sync.Mutex
	conns map[domain.UserID]*webrtc.PeerConnection
}

func DefaultRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

func NewConnector(self domain.UserID, send SendFunc) *Connector {
	return &Connector{
		self:  self,
		table: NewNegotiationTable(),
		send:  send,
		rtc:   DefaultRTCConfig(),
		conns: make(map[domain.UserID]*webrtc.PeerConnection),
	}
}

func (c *Connector) pcFor(ctx context.Context, remote domain.UserID) (*webrtc.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pc, ok := c.conns[remote]; ok {
		return pc, nil
	}
	pc, err := webrtc.NewPeerConnection(c.rtc)
	if err != nil {
		return nil, err
	}
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		body, err := json.Marshal(struct {
			Type      domain.SignalType       `json:"type"`
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}{domain.SignalICECandidate, cand.ToJSON()})
		if err != nil {
			return
		}
		if err := c.send(ctx, remote, body); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("candidate send")
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "peer").Str("remote", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
	})
	c.conns[remote] = pc
	return pc, nil
}

// Offer starts a negotiation with remote. Fails fast with ErrNegotiationBusy
// while a previous exchange is still open.
func (c *Connector) Offer(ctx context.Context, remote domain.UserID) error {
	if !c.table.Start(remote) {
		return ErrNegotiationBusy
	}
	pc, err := c.pcFor(ctx, remote)
	if err != nil {
		c.finish(ctx, remote)
		return err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.finish(ctx, remote)
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		c.finish(ctx, remote)
		return err
	}
	body, err := json.Marshal(offer)
	if err != nil {
		c.finish(ctx, remote)
		return err
	}
	if err := c.send(ctx, remote, body); err != nil {
		c.finish(ctx, remote)
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

// HandleSignal processes one inbound envelope. Signals for other recipients
// are dropped here: the relay broadcasts and receivers filter by toUserId.
// Offers landing mid-negotiation are deferred, never lost.
func (c *Connector) HandleSignal(ctx context.Context, env domain.SignalEnvelope) error {
	if env.ToUserID != c.self || env.FromUserID == c.self {
		return nil
	}
	remote := env.FromUserID

	switch env.Type {
	case domain.SignalOffer:
		if !c.table.Start(remote) {
			c.table.Defer(remote, env)
			return nil
		}
		return c.answer(ctx, remote, env)

	case domain.SignalAnswer:
		pc, err := c.pcFor(ctx, remote)
		if err != nil {
			return err
		}
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &sd); err != nil {
			return err
		}
		if err := pc.SetRemoteDescription(sd); err != nil {
			return err
		}
		c.finish(ctx, remote)
		return nil

	case domain.SignalICECandidate:
		pc, err := c.pcFor(ctx, remote)
		if err != nil {
			return err
		}
		var body struct {
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil || body.Candidate.Candidate == "" {
			var flat webrtc.ICECandidateInit
			if err := json.Unmarshal(env.Payload, &flat); err != nil {
				return err
			}
			body.Candidate = flat
		}
		return pc.AddICECandidate(body.Candidate)
	}
	return fmt.Errorf("unhandled signal type %q", env.Type)
}

func (c *Connector) answer(ctx context.Context, remote domain.UserID, env domain.SignalEnvelope) error {
	pc, err := c.pcFor(ctx, remote)
	if err != nil {
		c.finish(ctx, remote)
		return err
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(env.Payload, &offer); err != nil {
		c.finish(ctx, remote)
		return err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		c.finish(ctx, remote)
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		c.finish(ctx, remote)
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		c.finish(ctx, remote)
		return err
	}
	body, err := json.Marshal(answer)
	if err != nil {
		c.finish(ctx, remote)
		return err
	}
	sendErr := c.send(ctx, remote, body)
	c.finish(ctx, remote)
	return sendErr
}

// finish releases the lock and replays whatever arrived mid-exchange, in
// arrival order.
func (c *Connector) finish(ctx context.Context, remote domain.UserID) {
	for _, deferred := range c.table.End(remote) {
		if err := c.HandleSignal(ctx, deferred); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("deferred signal replay")
		}
	}
}

// DropPeer tears down the connection and negotiation state for one remote.
func (c *Connector) DropPeer(remote domain.UserID) {
	c.mu.Lock()
	pc, ok := c.conns[remote]
	delete(c.conns, remote)
	c.mu.Unlock()
	c.table.Drop(remote)
	if ok {
		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("close error")
		}
	}
}

// Close tears everything down.
func (c *Connector) Close() {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[domain.UserID]*webrtc.PeerConnection)
	c.mu.Unlock()
	for remote, pc := range conns {
		c.table.Drop(remote)
		_ = pc.Close()
	}
}

package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// Relay validates and republishes application events onto session topics.
// Every operation is a pure validate-then-forward: no event history is kept
// and no ordering is added beyond the bus's natural delivery order.
type Relay struct {
	bus       core.Bus
	store     core.SessionStore
	registers *OwnershipRegisters
}

func NewRelay(bus core.Bus, store core.SessionStore, registers *OwnershipRegisters) *Relay {
	return &Relay{bus: bus, store: store, registers: registers}
}

// member loads the session and checks that the caller belongs to it.
func (r *Relay) member(ctx context.Context, ident *domain.Identity, id domain.SessionID) (*domain.ClassSession, error) {
	if ident == nil {
		return nil, ErrUnauthorized
	}
	if id == "" {
		return nil, badRequestf("missing session id")
	}
	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if !sess.HasParticipant(ident.UserID) {
		return nil, forbiddenf("not a participant of session %s", id)
	}
	return sess, nil
}

func (r *Relay) publish(ctx context.Context, topic, event string, payload any, exclude core.SocketID) error {
	if err := r.bus.Publish(ctx, topic, event, payload, exclude); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	log.Debug().Str("module", "app.relay").Str("topic", topic).Str("event", event).Msg("published")
	return nil
}

// RaiseHand broadcasts a hand-raise toggle to the session.
func (r *Relay) RaiseHand(ctx context.Context, ident *domain.Identity, id domain.SessionID, h domain.HandRaise) error {
	sess, err := r.member(ctx, ident, id)
	if err != nil {
		return err
	}
	if h.UserID == "" {
		return badRequestf("missing userId")
	}
	return r.publish(ctx, domain.SessionTopic(sess.ID), domain.EventHandRaiseToggled, h, "")
}

// Spotlight sets the spotlight register. Teacher only; nil clears it.
func (r *Relay) Spotlight(ctx context.Context, ident *domain.Identity, id domain.SessionID, holder *domain.UserID) error {
	sess, err := r.member(ctx, ident, id)
	if err != nil {
		return err
	}
	return r.registers.Set(ctx, ident, sess, KindSpotlight, holder)
}

// WhiteboardControl sets the whiteboard-controller register. Teacher only.
func (r *Relay) WhiteboardControl(ctx context.Context, ident *domain.Identity, id domain.SessionID, holder *domain.UserID) error {
	sess, err := r.member(ctx, ident, id)
	if err != nil {
		return err
	}
	return r.registers.Set(ctx, ident, sess, KindWhiteboard, holder)
}

// Timer broadcasts a shared-timer event. Requires the teacher role and that
// the caller is the session's host-of-record.
func (r *Relay) Timer(ctx context.Context, ident *domain.Identity, id domain.SessionID, ev domain.TimerEvent) error {
	sess, err := r.member(ctx, ident, id)
	if err != nil {
		return err
	}
	if ident.Role != domain.RoleTeacher {
		return forbiddenf("only the teacher may drive the timer")
	}
	if !sess.IsHost(ident.UserID) {
		return forbiddenf("caller is not the host of session %s", id)
	}
	if ev.Event == "" {
		return badRequestf("missing timer event")
	}
	return r.publish(ctx, domain.SessionTopic(sess.ID), domain.EventTimer, ev, "")
}

// Whiteboard republishes one stroke event, stamping the sender id. The
// caller-supplied socket id is excluded so the author's own canvas does not
// replay its stroke.
func (r *Relay) Whiteboard(ctx context.Context, ident *domain.Identity, id domain.SessionID, event string, data json.RawMessage, exclude core.SocketID) error {
	sess, err := r.member(ctx, ident, id)
	if err != nil {
		return err
	}
	if event == "" {
		return badRequestf("missing event name")
	}
	payload := domain.WhiteboardEvent{Event: event, SenderID: ident.UserID, Data: data}
	return r.publish(ctx, domain.SessionTopic(sess.ID), event, payload, exclude)
}

// WebRTCSignal forwards one negotiation signal. The envelope is broadcast on
// the session topic; recipients filter by toUserId client-side.
func (r *Relay) WebRTCSignal(ctx context.Context, ident *domain.Identity, id domain.SessionID, to domain.UserID, raw json.RawMessage) error {
	sess, err := r.member(ctx, ident, id)
	if err != nil {
		return err
	}
	env, err := domain.ParseSignal(ident.UserID, to, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return r.publish(ctx, domain.SessionTopic(sess.ID), domain.EventWebRTCSignal, env, "")
}

// Relayed republishes a caller-named event on any channel the caller may use.
// Authorization follows the same topic rules as /auth.
func (r *Relay) Relayed(ctx context.Context, ident *domain.Identity, channel, event string, data json.RawMessage, exclude core.SocketID) error {
	if ident == nil {
		return ErrUnauthorized
	}
	if event == "" {
		return badRequestf("missing event name")
	}
	topic, err := domain.ParseTopic(channel)
	if err != nil {
		return err
	}
	if topic.SessionBacked() {
		if _, err := r.member(ctx, ident, domain.SessionID(topic.ID)); err != nil {
			return err
		}
	}
	return r.publish(ctx, topic.Name, event, data, exclude)
}

// TriggerCard fans an activity-card toggle out to every live class channel.
func (r *Relay) TriggerCard(ctx context.Context, ident *domain.Identity, card domain.TriggerCard) error {
	if ident == nil {
		return ErrUnauthorized
	}
	if ident.Role != domain.RoleTeacher {
		return forbiddenf("only a teacher may trigger cards")
	}
	topics := r.bus.ActiveTopics(domain.ClasseTopicPrefix)
	for _, topic := range topics {
		if err := r.publish(ctx, topic, domain.EventTriggerCard, card, ""); err != nil {
			return err
		}
	}
	log.Info().Str("module", "app.relay").Int("channels", len(topics)).Bool("active", card.IsActive).Msg("trigger card fan-out")
	return nil
}

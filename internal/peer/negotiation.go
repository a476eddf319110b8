// Package peer holds the client-resident side of the coordination protocol:
// per-remote-peer negotiation locking and deferred-signal replay.
package peer

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/domain"
)

type negotiationState int

const (
	stateIdle negotiationState = iota
	stateNegotiating
)

// lock is the state for one remote peer: the negotiation flag plus the FIFO
// of signals that arrived while an exchange was in flight.
type lock struct {
	state    negotiationState
	deferred []domain.SignalEnvelope
}

// NegotiationTable serializes offer/answer exchanges per remote peer. Each
// peer gets its own lock, so concurrent negotiations with different peers in
// a multi-party call never contend. At most one exchange per peer runs at a
// time; that is what prevents glare.
type NegotiationTable struct {
	mu    sync.Mutex
	peers map[domain.UserID]*lock
}

func NewNegotiationTable() *NegotiationTable {
	return &NegotiationTable{peers: make(map[domain.UserID]*lock)}
}

func (t *NegotiationTable) get(remote domain.UserID) *lock {
	l, ok := t.peers[remote]
	if !ok {
		l = &lock{}
		t.peers[remote] = l
	}
	return l
}

// Start claims the negotiation lock for remote. It returns false when an
// exchange is already running; the caller must not generate an offer then.
func (t *NegotiationTable) Start(remote domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.get(remote)
	if l.state == stateNegotiating {
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("negotiation already in flight")
		return false
	}
	l.state = stateNegotiating
	return true
}

// End releases the lock and drains the deferred queue in arrival order. The
// caller replays the returned signals; each is handed out exactly once.
func (t *NegotiationTable) End(remote domain.UserID) []domain.SignalEnvelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.get(remote)
	l.state = stateIdle
	drained := l.deferred
	l.deferred = nil
	return drained
}

// Defer queues a signal that arrived mid-negotiation. Signals are never
// dropped; they wait for End.
func (t *NegotiationTable) Defer(remote domain.UserID, env domain.SignalEnvelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.get(remote)
	l.deferred = append(l.deferred, env)
	log.Debug().Str("module", "peer").
		Str("remote", string(remote)).
		Int("queued", len(l.deferred)).
		Msg("signal deferred")
}

// Negotiating reports whether an exchange with remote is in flight.
func (t *NegotiationTable) Negotiating(remote domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(remote).state == stateNegotiating
}

// Drop forgets a peer entirely, deferred signals included. Used when the
// remote leaves the session.
func (t *NegotiationTable) Drop(remote domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, remote)
}

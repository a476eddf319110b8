package peer

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclasse/classrelay/internal/domain"
)

func TestStartIsExclusivePerPeer(t *testing.T) {
	table := NewNegotiationTable()

	require.True(t, table.Start("u2"))
	assert.False(t, table.Start("u2"), "second start without end must fail")
	assert.True(t, table.Negotiating("u2"))

	// A different peer has its own lock.
	assert.True(t, table.Start("u3"))
}

func TestEndReleasesLock(t *testing.T) {
	table := NewNegotiationTable()
	require.True(t, table.Start("u2"))
	table.End("u2")
	assert.False(t, table.Negotiating("u2"))
	assert.True(t, table.Start("u2"))
}

func TestDeferredSignalsDrainInOrderExactlyOnce(t *testing.T) {
	table := NewNegotiationTable()
	require.True(t, table.Start("u2"))

	var want []domain.SignalEnvelope
	for i := 0; i < 5; i++ {
		env := domain.SignalEnvelope{
			FromUserID: "u2",
			ToUserID:   "u1",
			Type:       domain.SignalICECandidate,
			Payload:    json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		}
		table.Defer("u2", env)
		want = append(want, env)
	}

	got := table.End("u2")
	assert.Equal(t, want, got)

	// Exactly once: a second drain is empty.
	require.True(t, table.Start("u2"))
	assert.Empty(t, table.End("u2"))
}

func TestDeferredQueuesAreIndependentPerPeer(t *testing.T) {
	table := NewNegotiationTable()
	require.True(t, table.Start("u2"))
	require.True(t, table.Start("u3"))

	table.Defer("u2", domain.SignalEnvelope{FromUserID: "u2", Type: domain.SignalOffer})
	table.Defer("u3", domain.SignalEnvelope{FromUserID: "u3", Type: domain.SignalAnswer})

	fromU2 := table.End("u2")
	require.Len(t, fromU2, 1)
	assert.Equal(t, domain.UserID("u2"), fromU2[0].FromUserID)

	fromU3 := table.End("u3")
	require.Len(t, fromU3, 1)
	assert.Equal(t, domain.UserID("u3"), fromU3[0].FromUserID)
}

func TestDropForgetsPeerState(t *testing.T) {
	table := NewNegotiationTable()
	require.True(t, table.Start("u2"))
	table.Defer("u2", domain.SignalEnvelope{FromUserID: "u2", Type: domain.SignalOffer})

	table.Drop("u2")
	assert.False(t, table.Negotiating("u2"))
	assert.True(t, table.Start("u2"))
	assert.Empty(t, table.End("u2"))
}

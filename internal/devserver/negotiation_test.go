package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

func TestNegotiationDealRewards(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)

	opening, err := n.Step(protocol.ActionCounter, 6000, "")
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionOffer, opening.Action)
	assert.Equal(t, 1, opening.Round)
	assert.Nil(t, opening.Message)
	assert.Equal(t, protocol.AgentRetailer, n.Proposer())

	accept, err := n.Step(protocol.ActionAccept, 0, "fine")
	require.NoError(t, err)
	assert.Equal(t, protocol.AgentRetailer, accept.Agent)
	assert.Equal(t, 2, accept.Round)
	assert.Equal(t, 6000.0, accept.Price.At(0))
	require.NotNil(t, accept.Message)
	assert.Equal(t, "fine", *accept.Message)

	assert.True(t, n.Done())
	assert.Equal(t, OutcomeDeal, n.Outcome())
	supplier, retailer := n.Rewards()
	assert.InDelta(t, 0.1*0.99, supplier, 1e-9)
	assert.InDelta(t, 0.2*0.99, retailer, 1e-9)

	end := n.End()
	assert.Equal(t, 6000.0, end.DealPrice.At(0))
	assert.Len(t, end.FinalRewards, 2)
}

func TestNegotiationAcceptBeforeAnyOffer(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)

	_, err := n.Step(protocol.ActionAccept, 0, "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeQuit, n.Outcome())
	supplier, retailer := n.Rewards()
	assert.Equal(t, -0.5, supplier)
	assert.Equal(t, 0.0, retailer)
	assert.True(t, n.End().DealPrice.IsAbsent())
}

func TestNegotiationQuit(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)
	_, err := n.Step(protocol.ActionCounter, 7000, "")
	require.NoError(t, err)

	turn, err := n.Step(protocol.ActionQuit, 0, "")
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionQuit, turn.Action)
	assert.Equal(t, 7000.0, turn.Price.At(0))

	supplier, retailer := n.Rewards()
	assert.Equal(t, -0.1, supplier)
	assert.Equal(t, -0.1, retailer)
	assert.True(t, n.End().DealPrice.IsAbsent())
}

func TestNegotiationTimeout(t *testing.T) {
	n := NewNegotiation(Rules{MaxRounds: 2}, 5000, 8000)

	_, err := n.Step(protocol.ActionCounter, 7000, "")
	require.NoError(t, err)
	second, err := n.Step(protocol.ActionCounter, 6000, "")
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionCounter, second.Action)

	assert.Equal(t, OutcomeTimeout, n.Outcome())
	supplier, retailer := n.Rewards()
	assert.Equal(t, -0.05, supplier)
	assert.Equal(t, -0.05, retailer)

	_, err = n.Step(protocol.ActionAccept, 0, "")
	assert.ErrorIs(t, err, ErrNegotiationOver)
}

func TestNegotiationClampsOffers(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)
	turn, err := n.Step(protocol.ActionCounter, 25000, "")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, turn.Price.At(0))

	turn, err = n.Step(protocol.ActionCounter, -5, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, turn.Price.At(0))
}

func TestNegotiationRejectsUnknownAction(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)
	_, err := n.Step("BID", 100, "")
	assert.ErrorIs(t, err, ErrUnsupportedAction)
	assert.False(t, n.Done())
}

func TestNegotiationSwapsInvertedValuations(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 8500, 5500)
	opening := n.Init("s1")
	assert.Equal(t, 5500.0, opening.ValuationsSupplier.At(0))
	assert.Equal(t, 8500.0, opening.ValuationsRetailer.At(0))
	require.NoError(t, opening.Validate())
}

func TestScriptedAgentsReachDeal(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)
	for !n.Done() {
		action, price, message := ScriptedMove(n)
		_, err := n.Step(action, price, message)
		require.NoError(t, err)
	}

	require.Equal(t, OutcomeDeal, n.Outcome())
	deal := n.End().DealPrice.At(0)
	assert.GreaterOrEqual(t, deal, 5000.0)
	assert.LessOrEqual(t, deal, 8000.0)
	assert.Less(t, n.Round(), DefaultRules().MaxRounds)

	supplier, retailer := n.Rewards()
	assert.Greater(t, supplier, 0.0)
	assert.Greater(t, retailer, 0.0)
}

func TestRecordReplaysAsStoredTurns(t *testing.T) {
	n := NewNegotiation(DefaultRules(), 5000, 8000)
	for !n.Done() {
		action, price, message := ScriptedMove(n)
		_, err := n.Step(action, price, message)
		require.NoError(t, err)
	}

	rec, err := n.Record("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, 1, rec.Config.NumItems)
	assert.Equal(t, 5000.0, rec.InitialState.ValuationsSupplier.At(0))
	require.NotEmpty(t, rec.Turns)
	for i, raw := range rec.Turns {
		evt, err := protocol.ParseRecorded(raw)
		require.NoError(t, err)
		turn, ok := evt.(protocol.Turn)
		require.True(t, ok)
		assert.Equal(t, i+1, turn.Round)
	}

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := n.Summary("s1", at)
	assert.Equal(t, "deal", summary.Result)
	assert.Equal(t, n.Round(), summary.Rounds)
	assert.True(t, at.Equal(summary.Timestamp.Time))
}

func TestValuationsRanges(t *testing.T) {
	supplier, retailer := Valuations(func() float64 { return 0 })
	assert.Equal(t, 4000.0, supplier)
	assert.Equal(t, 7000.0, retailer)

	supplier, retailer = Valuations(func() float64 { return 0.5 })
	assert.Equal(t, 5000.0, supplier)
	assert.Equal(t, 8000.0, retailer)
}

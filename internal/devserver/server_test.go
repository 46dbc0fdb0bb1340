package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/negotiator/internal/directory"
	"github.com/xiaot623/gogo/negotiator/internal/logging"
	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/replay"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

func newTestServer(t *testing.T, turnDelay time.Duration, with ...func(*Options)) (*Server, *httptest.Server) {
	t.Helper()
	opts := Options{
		TurnDelay:  turnDelay,
		Valuations: func() (float64, float64) { return 5000, 8000 },
		Logger:     logging.Discard(),
	}
	for _, fn := range with {
		fn(&opts)
	}
	srv := NewServer(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, ts
}

func streamURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/negotiate"
}

func connect(t *testing.T, ts *httptest.Server) (*transport.Adapter, *transport.Stream) {
	t.Helper()
	adapter := transport.New(transport.Options{WriteTimeout: time.Second, Logger: logging.Discard()})
	t.Cleanup(func() { adapter.Close() })
	stream, err := adapter.Start(context.Background(), streamURL(ts))
	require.NoError(t, err)
	return adapter, stream
}

// next reads events until one matches or the stream closes.
func next(t *testing.T, stream *transport.Stream, match func(protocol.Event) bool) (protocol.Event, []protocol.Event) {
	t.Helper()
	var seen []protocol.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-stream.Events:
			if !ok {
				t.Fatalf("stream closed before the expected event, saw %d events", len(seen))
			}
			seen = append(seen, evt)
			if match(evt) {
				return evt, seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event, saw %d events", len(seen))
		}
	}
}

func isType(typ protocol.EventType) func(protocol.Event) bool {
	return func(evt protocol.Event) bool { return evt.Type() == typ }
}

func foldEvents(t *testing.T, events []protocol.Event) projector.ViewState {
	t.Helper()
	view := projector.New()
	for _, evt := range events {
		var err error
		view, err = projector.Fold(view, evt)
		require.NoError(t, err)
	}
	return view
}

func TestScriptedSessionIsRecordedAndReplayable(t *testing.T) {
	_, ts := newTestServer(t, 0)
	_, stream := connect(t, ts)

	_, events := next(t, stream, isType(protocol.EventTypeEnd))
	opening, ok := events[0].(protocol.Init)
	require.True(t, ok)
	require.NotEmpty(t, opening.SessionID)
	assert.Equal(t, 5000.0, opening.ValuationsSupplier.At(0))

	live := foldEvents(t, events)
	assert.Equal(t, projector.StatusDealReached, live.Status.Kind)

	client := directory.NewClient(ts.URL, time.Second)
	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, opening.SessionID, sessions[0].ID)
	assert.Equal(t, "deal", sessions[0].Result)

	rec, err := client.FetchSession(context.Background(), opening.SessionID)
	require.NoError(t, err)
	replayed, errs := replay.Events(rec)
	assert.Empty(t, errs)
	assert.Equal(t, live, foldEvents(t, replayed))
}

func TestManualControlWaitsForHuman(t *testing.T) {
	_, ts := newTestServer(t, 20*time.Millisecond)
	adapter, stream := connect(t, ts)

	require.NoError(t, adapter.Send(protocol.ToggleManual{Enabled: true}))

	evt, seen := next(t, stream, isType(protocol.EventTypeWaitForHuman))
	assert.Equal(t, protocol.AgentRetailer, evt.(protocol.WaitForHuman).Agent)

	var offer protocol.Turn
	for _, e := range seen {
		if turn, ok := e.(protocol.Turn); ok {
			offer = turn
		}
	}
	require.Equal(t, protocol.AgentSupplier, offer.Agent)

	require.NoError(t, adapter.Send(protocol.HumanAction{Action: protocol.ActionAccept, Message: "deal"}))

	evt, _ = next(t, stream, isType(protocol.EventTypeTurn))
	turn := evt.(protocol.Turn)
	assert.Equal(t, protocol.AgentRetailer, turn.Agent)
	assert.Equal(t, protocol.ActionAccept, turn.Action)
	require.NotNil(t, turn.Message)
	assert.Equal(t, "deal", *turn.Message)

	evt, _ = next(t, stream, isType(protocol.EventTypeEnd))
	assert.Equal(t, offer.Price.At(0), evt.(protocol.End).DealPrice.At(0))
}

func TestHumanCounterContinuesNegotiation(t *testing.T) {
	_, ts := newTestServer(t, 20*time.Millisecond)
	adapter, stream := connect(t, ts)
	require.NoError(t, adapter.Send(protocol.ToggleManual{Enabled: true}))

	next(t, stream, isType(protocol.EventTypeWaitForHuman))
	require.NoError(t, adapter.Send(protocol.HumanAction{Action: protocol.ActionCounter, Price: 5100}))

	evt, _ := next(t, stream, isType(protocol.EventTypeTurn))
	assert.Equal(t, 5100.0, evt.(protocol.Turn).Price.At(0))
	assert.Equal(t, protocol.ActionCounter, evt.(protocol.Turn).Action)

	// The scripted supplier answers, then the operator is asked again.
	evt, _ = next(t, stream, isType(protocol.EventTypeWaitForHuman))
	assert.Equal(t, protocol.AgentRetailer, evt.(protocol.WaitForHuman).Agent)
}

func TestPolicyDeniesHumanMove(t *testing.T) {
	policy := newDefaultPolicy(t)
	_, ts := newTestServer(t, 20*time.Millisecond, func(o *Options) { o.Policy = policy })
	adapter, stream := connect(t, ts)
	require.NoError(t, adapter.Send(protocol.ToggleManual{Enabled: true}))

	next(t, stream, isType(protocol.EventTypeWaitForHuman))
	require.NoError(t, adapter.Send(protocol.HumanAction{Action: protocol.ActionCounter, Price: 12000}))

	evt, seen := next(t, stream, func(evt protocol.Event) bool {
		l, ok := evt.(protocol.Log)
		return ok && strings.HasPrefix(l.Message, "Human action rejected")
	})
	assert.Equal(t, "Human action rejected: counter price must not exceed 10000", evt.(protocol.Log).Message)
	for _, e := range seen {
		assert.NotEqual(t, protocol.EventTypeTurn, e.Type())
	}

	// Still the operator's move.
	require.NoError(t, adapter.Send(protocol.HumanAction{Action: protocol.ActionCounter, Price: 6000}))
	evt, _ = next(t, stream, isType(protocol.EventTypeTurn))
	assert.Equal(t, 6000.0, evt.(protocol.Turn).Price.At(0))
}

func TestServerRecordsIntoSQLite(t *testing.T) {
	store := newSQLiteStore(t)
	_, ts := newTestServer(t, 0, func(o *Options) { o.History = store })
	_, stream := connect(t, ts)
	next(t, stream, isType(protocol.EventTypeEnd))

	client := directory.NewClient(ts.URL, time.Second)
	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	rec, err := client.FetchSession(context.Background(), sessions[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Turns)
}

func TestHumanActionWithoutPendingMove(t *testing.T) {
	_, ts := newTestServer(t, 50*time.Millisecond)
	adapter, stream := connect(t, ts)

	require.NoError(t, adapter.Send(protocol.HumanAction{Action: protocol.ActionCounter, Price: 100}))

	evt, _ := next(t, stream, func(evt protocol.Event) bool {
		l, ok := evt.(protocol.Log)
		return ok && l.Message == "No human move is pending"
	})
	assert.NotNil(t, evt)
}

func TestClientLeavingAbandonsSession(t *testing.T) {
	srv, ts := newTestServer(t, 50*time.Millisecond)
	adapter, stream := connect(t, ts)
	next(t, stream, isType(protocol.EventTypeInit))

	require.NoError(t, adapter.Close())

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sessions) == 0
	}, 2*time.Second, 10*time.Millisecond)
	n, err := srv.History().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, 0)
	client := directory.NewClient(ts.URL, time.Second)

	_, err := client.FetchSession(context.Background(), "missing")
	require.ErrorIs(t, err, directory.ErrDirectoryUnavailable)
	assert.Contains(t, err.Error(), "session not found")
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["recorded"])
}

package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

type humanAction struct {
	action  protocol.Action
	price   float64
	message string
}

type fakeController struct {
	mu        sync.Mutex
	calls     []string
	actions   []humanAction
	replayIDs []string
	manual    []bool
	err       error
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) StartLive(context.Context) error { return f.record("live") }

func (f *fakeController) StartReplay(_ context.Context, id string) error {
	f.mu.Lock()
	f.replayIDs = append(f.replayIDs, id)
	f.mu.Unlock()
	return f.record("replay")
}

func (f *fakeController) ToggleManual(enabled bool) error {
	f.mu.Lock()
	f.manual = append(f.manual, enabled)
	f.mu.Unlock()
	return f.record("manual")
}

func (f *fakeController) SubmitHumanAction(action protocol.Action, price float64, message string) error {
	f.mu.Lock()
	f.actions = append(f.actions, humanAction{action, price, message})
	f.mu.Unlock()
	return f.record("human")
}

func (f *fakeController) RefreshSessions(context.Context) error { return f.record("refresh") }

func (f *fakeController) Stop() { f.record("stop") }

func (f *fakeController) Snapshot() controller.Snapshot {
	return controller.Snapshot{Mode: controller.ModeIdle, Connection: transport.StatusDisconnected, View: projector.New()}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends msg. A controller call it schedules is run and its result fed
// back, the way the program loop would.
func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil || m.focus != focusNone && msg.Type != tea.KeyEnter {
		return m
	}
	if done, ok := cmd().(commandDoneMsg); ok {
		next, _ = m.Update(done)
		m = next.(Model)
	}
	return m
}

func apply(m Model, s controller.Snapshot) Model {
	next, _ := m.Update(snapshotMsg(s))
	return next.(Model)
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func waitingSnapshot(t *testing.T) controller.Snapshot {
	t.Helper()
	view := projector.New()
	for _, evt := range []protocol.Event{
		protocol.Init{SessionID: "s1", ValuationsSupplier: protocol.Scalar(5000), ValuationsRetailer: protocol.Scalar(8000)},
		protocol.Turn{Round: 1, Agent: protocol.AgentSupplier, Price: protocol.Scalar(7000), Action: protocol.ActionOffer},
		protocol.WaitForHuman{Agent: protocol.AgentRetailer},
	} {
		var err error
		view, err = projector.Fold(view, evt)
		require.NoError(t, err)
	}
	return controller.Snapshot{Mode: controller.ModeLive, Connection: transport.StatusConnected, View: view, ManualEnabled: true}
}

func newTestModel(ctrl Controller) Model {
	m := New(context.Background(), ctrl, NewFeed(), Options{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func TestWaitPrefillsSuggestedPrice(t *testing.T) {
	m := newTestModel(&fakeController{})
	m = apply(m, waitingSnapshot(t))

	assert.True(t, m.waiting)
	assert.Equal(t, "6500", m.price.Value())
	assert.Contains(t, m.View(), "Your move as RETAILER")
	assert.Contains(t, m.View(), "WAITING FOR RETAILER")
}

func TestAcceptSubmitsHumanAction(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m = apply(m, waitingSnapshot(t))

	m = press(t, m, key("a"))

	require.Len(t, ctrl.actions, 1)
	assert.Equal(t, protocol.ActionAccept, ctrl.actions[0].action)
	assert.Empty(t, m.lastErr)
}

func TestCounterWithPriceAndMessage(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m = apply(m, waitingSnapshot(t))

	m = press(t, m, key("c"))
	require.Equal(t, focusPrice, m.focus)
	m.price.SetValue("")
	m = typeText(t, m, "6100")
	m = press(t, m, key("tab"))
	require.Equal(t, focusMessage, m.focus)
	m = typeText(t, m, "final offer")
	m = press(t, m, key("enter"))

	require.Len(t, ctrl.actions, 1)
	assert.Equal(t, humanAction{protocol.ActionCounter, 6100, "final offer"}, ctrl.actions[0])
	assert.Equal(t, focusNone, m.focus)
}

func TestCounterRejectsInvalidPrice(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m = apply(m, waitingSnapshot(t))

	m = press(t, m, key("c"))
	m.price.SetValue("abc")
	m = press(t, m, key("enter"))

	assert.Empty(t, ctrl.actions)
	assert.Contains(t, m.lastErr, "invalid price")
	assert.Equal(t, focusPrice, m.focus)
}

func TestHumanKeysOutsideWait(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)

	m = press(t, m, key("a"))
	assert.Contains(t, m.lastErr, "not awaiting")
	m = press(t, m, key("c"))
	assert.Equal(t, focusNone, m.focus)
	assert.Empty(t, ctrl.actions)
}

func TestMessageClearedOnNewTurn(t *testing.T) {
	m := newTestModel(&fakeController{})
	snap := waitingSnapshot(t)
	m = apply(m, snap)
	m.message.SetValue("draft")

	view, err := projector.Fold(snap.View, protocol.Turn{Round: 2, Agent: protocol.AgentRetailer, Price: protocol.Scalar(6000), Action: protocol.ActionCounter})
	require.NoError(t, err)
	snap.View = view
	m = apply(m, snap)

	assert.Empty(t, m.message.Value())
	assert.False(t, m.waiting)
}

func TestReplaySelectedSession(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m = apply(m, controller.Snapshot{
		Mode: controller.ModeIdle,
		View: projector.New(),
		Sessions: []protocol.SessionSummary{
			{ID: "newest", Result: "deal", Rounds: 4},
			{ID: "older", Result: "quit", Rounds: 2},
		},
	})

	m = press(t, m, key("down"))
	m = press(t, m, key("down"))
	m = press(t, m, key("enter"))

	assert.Equal(t, []string{"older"}, ctrl.replayIDs)
	assert.Contains(t, m.View(), "older")
}

func TestControllerErrorShown(t *testing.T) {
	ctrl := &fakeController{err: errors.New("dial refused")}
	m := newTestModel(ctrl)

	m = press(t, m, key("l"))
	assert.Equal(t, "start: dial refused", m.lastErr)
	assert.Contains(t, m.View(), "dial refused")
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(&fakeController{})
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFeedKeepsLatest(t *testing.T) {
	feed := NewFeed()
	feed.Publish(controller.Snapshot{Notice: "first"})
	feed.Publish(controller.Snapshot{Notice: "second"})

	s, ok := feed.Next()
	require.True(t, ok)
	assert.Equal(t, "second", s.Notice)

	done := make(chan struct{})
	go func() {
		_, ok := feed.Next()
		assert.False(t, ok)
		close(done)
	}()
	feed.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

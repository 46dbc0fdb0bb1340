package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
)

// Feed is a controller.Sink that keeps only the latest snapshot. Publish never
// blocks, so a slow terminal cannot stall the controller.
type Feed struct {
	mu     sync.Mutex
	latest controller.Snapshot
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewFeed() *Feed {
	return &Feed{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Publish implements controller.Sink.
func (f *Feed) Publish(s controller.Snapshot) {
	f.mu.Lock()
	f.latest = s
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a snapshot newer than the last one read is published. It
// reports false once the feed is closed.
func (f *Feed) Next() (controller.Snapshot, bool) {
	select {
	case <-f.notify:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.latest, true
	case <-f.done:
		return controller.Snapshot{}, false
	}
}

// Close releases any pending Next.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}

type snapshotMsg controller.Snapshot

type feedClosedMsg struct{}

func waitSnapshot(f *Feed) tea.Cmd {
	return func() tea.Msg {
		s, ok := f.Next()
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// drainMsg asks the model to run the functions queued on its Bridge.
type drainMsg struct{}

// Bridge makes the bubbletea event loop the engine loop. Functions posted
// from timer and MIDI goroutines are queued in order and run inside
// Update, so the engine only ever runs on the program's goroutine.
type Bridge struct {
	mu    sync.Mutex
	send  func(tea.Msg)
	queue []func()
}

func NewBridge() *Bridge { return &Bridge{} }

// Attach connects the bridge to a running program's Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	kick := len(b.queue) > 0
	b.mu.Unlock()
	if kick {
		go send(drainMsg{})
	}
}

// Post queues f. It never blocks.
func (b *Bridge) Post(f func()) {
	b.mu.Lock()
	b.queue = append(b.queue, f)
	first := len(b.queue) == 1
	send := b.send
	b.mu.Unlock()
	if first && send != nil {
		// Send blocks until Update is free, which may be never if we are
		// inside it.
		go send(drainMsg{})
	}
}

// drain runs everything queued so far. It is called from Update.
func (b *Bridge) drain() {
	b.mu.Lock()
	q := b.queue
	b.queue = nil
	b.mu.Unlock()
	for _, f := range q {
		f()
	}
}

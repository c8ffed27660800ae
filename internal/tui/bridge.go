package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lemesvini/codeLog/internal/files"
)

type promptReply struct {
	value string
	ok    bool
}

// promptMsg asks the UI for a line of text.
type promptMsg struct {
	message string
	initial string
	reply   chan promptReply
}

// confirmMsg asks the UI for a yes/no answer.
type confirmMsg struct {
	message string
	reply   chan bool
}

// selectedMsg tells the UI which file to show in the editor.
type selectedMsg struct {
	record files.Record
}

// Bridge carries the workspace's questions and selection changes into the
// running program. It must be attached before any workspace operation
// runs, and those operations must not run on the program's update loop.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewBridge returns an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to send, usually (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) post(msg tea.Msg) bool {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

// Prompt blocks until the user answers or ctx is done.
func (b *Bridge) Prompt(ctx context.Context, message, initial string) (string, bool) {
	reply := make(chan promptReply, 1)
	if !b.post(promptMsg{message: message, initial: initial, reply: reply}) {
		return "", false
	}
	select {
	case r := <-reply:
		return r.value, r.ok
	case <-ctx.Done():
		return "", false
	}
}

// Confirm blocks until the user answers or ctx is done.
func (b *Bridge) Confirm(ctx context.Context, message string) bool {
	reply := make(chan bool, 1)
	if !b.post(confirmMsg{message: message, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Selected forwards a selection change to the editor pane.
func (b *Bridge) Selected(rec files.Record) {
	b.post(selectedMsg{record: rec})
}

package batch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind identifies an observer message.
type Kind string

const (
	KindLog      Kind = "log"
	KindProgress Kind = "progress"
	KindError    Kind = "error"
	KindDone     Kind = "done"
)

// Message is one report from a running batch to its observer.
type Message struct {
	Kind    Kind
	Text    string
	Percent float64
	Time    time.Time
}

// IsTerminal reports whether the message ends the run (done or error).
func (m Message) IsTerminal() bool {
	return m.Kind == KindDone || m.Kind == KindError
}

// LogMessage creates a human-readable line.
func LogMessage(text string) Message {
	return Message{Kind: KindLog, Text: text, Time: time.Now()}
}

// ProgressMessage creates an overall completion update in [0, 100].
func ProgressMessage(percent float64) Message {
	return Message{Kind: KindProgress, Percent: percent, Time: time.Now()}
}

// ErrorMessage creates a terminal failure report.
func ErrorMessage(text string) Message {
	return Message{Kind: KindError, Text: text, Time: time.Now()}
}

// DoneMessage creates a terminal success report.
func DoneMessage(text string) Message {
	return Message{Kind: KindDone, Text: text, Time: time.Now()}
}

// ErrMailboxClosed is returned by Next once the mailbox is closed and drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded, order-preserving queue from any number of
// producers to a single consumer. Send never blocks.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Send enqueues msg. It reports false if the mailbox is closed.
func (m *Mailbox) Send(msg Message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	m.wake()
	return true
}

// Poll removes and returns everything queued, without blocking.
func (m *Mailbox) Poll() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	out := m.queue
	m.queue = nil
	return out
}

// Next blocks until a message is available, the mailbox is closed and
// drained (ErrMailboxClosed), or ctx is done.
func (m *Mailbox) Next(ctx context.Context) (Message, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue[0] = Message{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, nil
		}
		if m.closed {
			m.mu.Unlock()
			return Message{}, ErrMailboxClosed
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close stops accepting messages. Queued messages can still be read.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Mailbox) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

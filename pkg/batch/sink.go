package batch

import (
	"strings"

	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// mailboxSink forwards log entries to the observer as log messages.
type mailboxSink struct {
	mb *Mailbox
}

// NewMailboxSink returns a logging sink that mirrors entries into mb.
// Combine with logging.NewLevelSink to forward only warnings and errors.
func NewMailboxSink(mb *Mailbox) logging.Sink {
	return &mailboxSink{mb: mb}
}

func (s *mailboxSink) Write(entry logging.LogEntry) {
	s.mb.Send(LogMessage(strings.ToUpper(string(entry.Level)) + ": " + entry.String()))
}

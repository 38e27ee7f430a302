package batch

import (
	"context"
	"time"

	"github.com/otherjamesbrown/interview-scribe/pkg/events"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

const publishTimeout = 2 * time.Second

// reporter sends observer messages for one run and guarantees a single
// terminal report. Messages are mirrored to the event publisher when set.
type reporter struct {
	ctx       context.Context
	runID     string
	mb        *Mailbox
	publisher EventPublisher
	logger    logging.Logger

	terminal      bool
	publishFailed bool
}

func newReporter(ctx context.Context, runID string, mb *Mailbox, publisher EventPublisher, logger logging.Logger) *reporter {
	return &reporter{
		ctx:       context.WithoutCancel(ctx),
		runID:     runID,
		mb:        mb,
		publisher: publisher,
		logger:    logger.WithContext(ctx),
	}
}

func (r *reporter) log(text string) {
	r.logger.Debug(text)
	r.send(LogMessage(text))
}

func (r *reporter) progress(percent float64) {
	r.send(ProgressMessage(percent))
}

func (r *reporter) done(text string) {
	r.terminalSend(DoneMessage(text))
}

func (r *reporter) fail(text string) {
	r.terminalSend(ErrorMessage(text))
}

func (r *reporter) terminalSend(msg Message) {
	if r.terminal {
		r.logger.Warn("Dropping second terminal report", logging.F("kind", string(msg.Kind)))
		return
	}
	r.terminal = true
	r.send(msg)
}

func (r *reporter) send(msg Message) {
	r.mb.Send(msg)
	if r.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
	defer cancel()
	err := r.publisher.PublishMessage(ctx, events.MessageParams{
		RunID:   r.runID,
		Kind:    string(msg.Kind),
		Text:    msg.Text,
		Percent: msg.Percent,
	})
	if err == nil {
		return
	}
	// Warn once per run; the bus is optional.
	if !r.publishFailed {
		r.publishFailed = true
		r.logger.Warn("Failed to publish batch event; further failures are logged at debug", logging.Err(err))
		return
	}
	r.logger.Debug("Failed to publish batch event", logging.Err(err))
}

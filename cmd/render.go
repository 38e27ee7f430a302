package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/schollz/progressbar/v3"

	"github.com/otherjamesbrown/interview-scribe/pkg/batch"
)

// messageRenderer shows observer messages to the user.
type messageRenderer interface {
	Render(msg batch.Message)
	Finish()
}

// newRenderer picks a progress bar for terminals and plain lines otherwise.
func newRenderer(out, errOut io.Writer, interactive bool) messageRenderer {
	if interactive {
		return newBarRenderer(out, errOut)
	}
	return &lineRenderer{out: out, errOut: errOut, lastPercent: -1}
}

// drainMailbox renders every message until the mailbox is closed and empty.
func drainMailbox(ctx context.Context, mb *batch.Mailbox, r messageRenderer) error {
	defer r.Finish()
	for {
		msg, err := mb.Next(ctx)
		if errors.Is(err, batch.ErrMailboxClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		r.Render(msg)
	}
}

// lineRenderer writes one line per message. Progress is printed only when
// the whole percentage changes.
type lineRenderer struct {
	out         io.Writer
	errOut      io.Writer
	lastPercent int
}

func (r *lineRenderer) Render(msg batch.Message) {
	switch msg.Kind {
	case batch.KindLog:
		fmt.Fprintln(r.out, msg.Text)
	case batch.KindProgress:
		p := wholePercent(msg.Percent)
		if p == r.lastPercent {
			return
		}
		r.lastPercent = p
		fmt.Fprintf(r.out, "[%3d%%]\n", p)
	case batch.KindDone:
		fmt.Fprintln(r.out, msg.Text)
	case batch.KindError:
		fmt.Fprintf(r.errOut, "Error: %s\n", msg.Text)
	}
}

func (r *lineRenderer) Finish() {}

// barRenderer keeps a progress bar at the bottom of the terminal and
// prints log lines above it.
type barRenderer struct {
	bar    *progressbar.ProgressBar
	out    io.Writer
	errOut io.Writer
}

func newBarRenderer(out, errOut io.Writer) *barRenderer {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Transcribing"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &barRenderer{bar: bar, out: out, errOut: errOut}
}

func (r *barRenderer) Render(msg batch.Message) {
	switch msg.Kind {
	case batch.KindProgress:
		_ = r.bar.Set(wholePercent(msg.Percent))
	case batch.KindLog:
		r.above(r.out, msg.Text)
	case batch.KindDone:
		_ = r.bar.Set(100)
		r.above(r.out, msg.Text)
	case batch.KindError:
		r.above(r.errOut, "Error: "+msg.Text)
	}
}

func (r *barRenderer) above(w io.Writer, line string) {
	_ = r.bar.Clear()
	fmt.Fprintln(w, line)
	_ = r.bar.RenderBlank()
}

func (r *barRenderer) Finish() {
	_ = r.bar.Close()
	fmt.Fprintln(r.out)
}

func wholePercent(p float64) int {
	return int(math.Round(math.Max(0, math.Min(100, p))))
}

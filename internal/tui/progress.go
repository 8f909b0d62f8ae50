package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
)

// Progress prints run events as they arrive.
type Progress struct {
	writer  io.Writer
	styles  Styles
	verbose bool
	mu      sync.Mutex
}

// NewProgress creates a progress printer. Verbose also prints task starts.
func NewProgress(w io.Writer, styles Styles, verbose bool) *Progress {
	return &Progress{writer: w, styles: styles, verbose: verbose}
}

// Follow prints events from ch until a run ends or ch closes. Once ctx is
// done it prints what is already buffered and returns.
func (p *Progress) Follow(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			p.Handle(e)
			if isRunEnd(e) {
				return
			}
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-ch:
					if !ok {
						return
					}
					p.Handle(e)
				default:
					return
				}
			}
		}
	}
}

func isRunEnd(e events.Event) bool {
	t := e.EventType()
	return t == events.TypeRunCompleted || t == events.TypeRunFailed
}

// Handle prints one event.
func (p *Progress) Handle(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.styles
	switch ev := e.(type) {
	case events.RunStartedEvent:
		p.printf("\n%s %s\n", s.Header.Render("Diagnosis"), s.Muted.Render(ev.RunID()))
		p.printf("  Specialists: %s\n", strings.Join(ev.Specialists, ", "))
		p.printf("  Document:    %d bytes\n", ev.DocumentSize)

	case events.TaskStartedEvent:
		if p.verbose {
			p.printf("%s [RUNNING] %s\n", s.StatusIcon("running"), ev.Task)
		}

	case events.TaskCompletedEvent:
		d := ev.Duration.Round(time.Millisecond)
		if ev.Success {
			p.printf("%s [DONE] %s (%s)\n", s.StatusIcon("success"), ev.Task, d)
		} else {
			p.printf("%s [FAILED] %s (%s): %s\n", s.StatusIcon("failure"), ev.Task, d, ev.Error)
		}

	case events.FanOutCompletedEvent:
		p.printf("\n%s %d succeeded, %d failed\n", s.Section.Render("--- Synthesis"), ev.Succeeded, ev.Failed)

	case events.RunCompletedEvent:
		line := fmt.Sprintf("Run completed in %s", ev.Duration.Round(time.Millisecond))
		if ev.Degraded {
			p.printf("\n%s %s %s\n", s.StatusIcon("warning"), line, s.Warning.Render("(degraded: some specialists failed)"))
			return
		}
		p.printf("\n%s %s\n", s.StatusIcon("done"), line)

	case events.RunFailedEvent:
		p.printf("\n%s %s\n", s.Error.Render("!!! Run failed:"), ev.Error)
	}
}

func (p *Progress) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.writer, format, args...)
}

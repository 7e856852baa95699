package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/poller"
)

// Theme holds the colors used for run states.
type Theme struct {
	Pending lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Pending: lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) render(state domain.ExtractionState) string {
	style := lipgloss.NewStyle()
	switch state {
	case domain.StateSucceeded:
		style = style.Foreground(t.Success).Bold(true)
	case domain.StateFailed:
		style = style.Foreground(t.Error).Bold(true)
	case domain.StateQueued, domain.StateRunning:
		style = style.Foreground(t.Pending)
	default:
		style = style.Foreground(t.Hint).Italic(true)
	}
	return style.Render(state.String())
}

// stateFunc answers the current state of one watched id.
type stateFunc func(ctx context.Context, id string) domain.ExtractionState

// watcher prints state transitions of a fixed set of ids until all settle.
type watcher struct {
	out     io.Writer
	ids     []string
	state   stateFunc
	pending func() int
	theme   Theme
	last    map[string]domain.ExtractionState
}

// newWatcher watches ids through state. pending, when set, reports runs the
// tracker still polls; watching continues until it drops to zero.
func newWatcher(out io.Writer, ids []string, state stateFunc, pending func() int) *watcher {
	return &watcher{
		out:     out,
		ids:     ids,
		state:   state,
		pending: pending,
		theme:   defaultTheme,
		last:    make(map[string]domain.ExtractionState, len(ids)),
	}
}

// check queries every id once and reports whether all of them settled.
// None counts as settled once no run is pending: nothing was started, so
// nothing will change.
func (w *watcher) check(ctx context.Context) bool {
	done := true
	for _, id := range w.ids {
		state := w.state(ctx, id)
		if prev, seen := w.last[id]; !seen || prev != state {
			w.last[id] = state
			fmt.Fprintf(w.out, "%s  %-40s %s\n", time.Now().Format("15:04:05"), id, w.theme.render(state))
		}
		if state != domain.StateNone && !state.IsTerminal() {
			done = false
		}
	}
	if w.pending != nil && w.pending() > 0 {
		done = false
	}
	return done
}

// run polls until every id settled or ctx is cancelled.
func (w *watcher) run(ctx context.Context, every time.Duration) error {
	return poller.New(every, w.check).Run(ctx)
}

// failures counts ids whose last state is Failed.
func (w *watcher) failures() int {
	n := 0
	for _, state := range w.last {
		if state == domain.StateFailed {
			n++
		}
	}
	return n
}

// finish runs the watcher unless watching is disabled and turns failed runs
// into the command's error.
func (w *watcher) finish(ctx context.Context, every time.Duration, watch bool) error {
	if !watch {
		w.check(ctx)
		return nil
	}
	if err := w.run(ctx, every); err != nil {
		return fmt.Errorf("watch interrupted: %w", err)
	}
	if n := w.failures(); n > 0 {
		return fmt.Errorf("%d of %d extraction(s) failed", n, len(w.ids))
	}
	return nil
}

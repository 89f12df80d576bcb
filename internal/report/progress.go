package report

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"

	"netsweep/internal/scan"
)

const progressWidth = 40

// ShowProgress decides whether to draw the bar for the given mode. In auto
// mode the bar is drawn only when f is a terminal.
func ShowProgress(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ProgressBar redraws a single status line. It is fed from the scan's
// progress hook, whose calls are already serialised.
type ProgressBar struct {
	w    io.Writer
	bar  progress.Model
	last int
	done bool
}

// NewProgressBar returns a bar that draws to w.
func NewProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{
		w:    w,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressWidth)),
		last: -1,
	}
}

// Update redraws the bar when the completed count moved.
func (p *ProgressBar) Update(status scan.Progress) {
	if p.done || status.Completed == p.last {
		return
	}
	p.last = status.Completed
	pct := 0.0
	if status.Total > 0 {
		pct = float64(status.Completed) / float64(status.Total)
	}
	fmt.Fprintf(p.w, "\r%s %d/%d scanned, %d live", p.bar.ViewAs(pct), status.Completed, status.Total, status.Live)
}

// Finish terminates the status line.
func (p *ProgressBar) Finish() {
	if p.done {
		return
	}
	p.done = true
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}

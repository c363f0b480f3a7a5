package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// TerminalSink prints one line per notification. Colour is used only
// when the writer is a terminal.
type TerminalSink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool

	stamp  lipgloss.Style
	title  lipgloss.Style
	body   lipgloss.Style
	levels map[Level]lipgloss.Style
}

// NewTerminalSink returns a sink writing to w.
func NewTerminalSink(w io.Writer) *TerminalSink {
	r := lipgloss.NewRenderer(w)
	return &TerminalSink{
		w:     w,
		color: isTerminal(w),
		stamp: r.NewStyle().Faint(true),
		title: r.NewStyle().Bold(true),
		body:  r.NewStyle().Foreground(lipgloss.Color("241")),
		levels: map[Level]lipgloss.Style{
			LevelInfo:    r.NewStyle().Foreground(lipgloss.Color("39")),
			LevelSuccess: r.NewStyle().Foreground(lipgloss.Color("42")),
			LevelError:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		},
	}
}

func (s *TerminalSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, s.Format(n)+"\n")
}

// Format renders n without the trailing newline.
func (s *TerminalSink) Format(n Notification) string {
	at := n.At
	if at.IsZero() {
		at = time.Now()
	}
	stamp := at.Format(time.TimeOnly)
	level := fmt.Sprintf("%-7s", n.Level)
	line := fmt.Sprintf("%s %s %s %s", stamp, level, n.Icon, n.Title)
	if s.color {
		line = fmt.Sprintf("%s %s %s %s",
			s.stamp.Render(stamp),
			s.levels[n.Level].Render(level),
			n.Icon,
			s.title.Render(n.Title),
		)
	}
	if n.Body != "" {
		if s.color {
			line += "  " + s.body.Render(n.Body)
		} else {
			line += "  " + n.Body
		}
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

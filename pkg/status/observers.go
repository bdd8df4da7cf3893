package status

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// LogObserver writes one log line per change.
type LogObserver struct {
	logger *logx.Logger
}

func NewLogObserver() *LogObserver {
	return &LogObserver{logger: logx.NewLogger("status")}
}

func (o *LogObserver) OnUpdate(c Change, snapshot []Row) {
	switch c.Kind {
	case Removed:
		o.logger.Info("%s done (%d active)", c.Row.ConversationID, len(snapshot))
	default:
		o.logger.Info("%s %s step=%q cost=$%.4f (%d active)",
			c.Row.ConversationID, c.Row.Label, c.Row.Step, c.Row.CostUSD, len(snapshot))
	}
}

// GaugeSetter is satisfied by *metrics.Recorder.
type GaugeSetter interface {
	SetConversations(active, running int)
}

// MetricsObserver mirrors the registry size into gauges.
type MetricsObserver struct {
	gauges GaugeSetter
}

func NewMetricsObserver(g GaugeSetter) *MetricsObserver {
	return &MetricsObserver{gauges: g}
}

func (o *MetricsObserver) OnUpdate(_ Change, snapshot []Row) {
	running := 0
	for _, r := range snapshot {
		if r.Label == LabelRunning {
			running++
		}
	}
	o.gauges.SetConversations(len(snapshot), running)
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TerminalObserver keeps a status panel at the bottom of a terminal and
// prints log lines above it. On a non-TTY writer it degrades to plain lines.
type TerminalObserver struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	drawn int
	last  []Row
	now   func() time.Time
}

// NewTerminalObserver writes to stdout, redrawing in place when it is a TTY.
func NewTerminalObserver() *TerminalObserver {
	return NewTerminalObserverTo(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

// NewTerminalObserverTo writes to w; tty selects in-place redraw.
func NewTerminalObserverTo(w io.Writer, tty bool) *TerminalObserver {
	return &TerminalObserver{out: w, tty: tty, now: time.Now}
}

func (o *TerminalObserver) OnUpdate(c Change, snapshot []Row) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.last = snapshot
	if !o.tty {
		if c.Kind == Removed {
			fmt.Fprintf(o.out, "- %s\n", c.Row.ConversationID)
		} else {
			fmt.Fprintf(o.out, "* %s %s %s $%.4f\n", c.Row.ConversationID, c.Row.Label, c.Row.Step, c.Row.CostUSD)
		}
		return
	}
	o.erase()
	o.draw()
}

func (o *TerminalObserver) OnLine(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tty {
		o.erase()
	}
	fmt.Fprintln(o.out, line)
	if o.tty {
		o.draw()
	}
}

func (o *TerminalObserver) erase() {
	if o.drawn == 0 {
		return
	}
	fmt.Fprintf(o.out, "\x1b[%dA\x1b[J", o.drawn)
	o.drawn = 0
}

func (o *TerminalObserver) draw() {
	if len(o.last) == 0 {
		return
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("taskbot: %d active", len(o.last)))}
	for _, r := range o.last {
		style := waitingStyle
		if r.Label == LabelRunning {
			style = runningStyle
		}
		elapsed := o.now().Sub(r.Since).Truncate(time.Second)
		lines = append(lines, fmt.Sprintf("  %s %s %s %s",
			r.ConversationID,
			style.Render(r.Label),
			r.Step,
			dimStyle.Render(fmt.Sprintf("%s $%.4f", elapsed, r.CostUSD)),
		))
	}
	fmt.Fprintln(o.out, strings.Join(lines, "\n"))
	o.drawn = len(lines)
}

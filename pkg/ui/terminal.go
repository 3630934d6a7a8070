// Package ui implements the webservice host for a terminal: a busy indicator
// and a modal error dialog rendered with lipgloss.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

var (
	colorBusy  = lipgloss.Color("#89b4fa")
	colorError = lipgloss.Color("#f38ba8")
	colorMuted = lipgloss.Color("#a6adc8")

	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

// Config configures a Terminal.
type Config struct {
	// Out receives the rendered indicator and dialogs.
	Out io.Writer
	// In is read for dialog acknowledgement. When nil dialogs dismiss
	// themselves right after rendering.
	In io.Reader
	// Animate redraws the indicator as a spinner. Only useful on a TTY.
	Animate bool
	// FrameInterval is the spinner redraw interval. Defaults to 100ms.
	FrameInterval time.Duration
}

// Terminal is an api.Host writing to a terminal.
type Terminal struct {
	cfg   Config
	mu    sync.Mutex // serializes writes to cfg.Out
	input *bufio.Reader
}

// NewTerminal creates a terminal host.
func NewTerminal(cfg Config) *Terminal {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 100 * time.Millisecond
	}
	t := &Terminal{cfg: cfg}
	if cfg.In != nil {
		t.input = bufio.NewReader(cfg.In)
	}
	return t
}

var _ api.Host = (*Terminal)(nil)

func (t *Terminal) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.cfg.Out, s)
}

// NewIndicator returns a busy indicator showing text.
func (t *Terminal) NewIndicator(title, text string) api.Indicator {
	return &indicator{term: t, title: title, text: text}
}

type indicator struct {
	term  *Terminal
	title string
	text  string

	openOnce  sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func (i *indicator) line(frame string) string {
	label := lipgloss.NewStyle().Foreground(colorBusy).Bold(true).Render(frame)
	return label + " " + i.text
}

func (i *indicator) Open() {
	i.openOnce.Do(func() {
		if !i.term.cfg.Animate {
			i.term.write(i.line("…") + "\n")
			return
		}
		i.stop = make(chan struct{})
		i.done = make(chan struct{})
		go i.spin()
	})
}

func (i *indicator) spin() {
	defer close(i.done)
	ticker := time.NewTicker(i.term.cfg.FrameInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		i.term.write("\r" + i.line(spinnerFrames[n%len(spinnerFrames)]))
		select {
		case <-i.stop:
			i.term.write("\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

func (i *indicator) Close() {
	i.closeOnce.Do(func() {
		if i.stop == nil {
			return
		}
		close(i.stop)
		<-i.done
	})
}

// NewErrorDialog returns a modal error dialog.
func (t *Terminal) NewErrorDialog(title, body, button string) api.Dialog {
	return &dialog{term: t, title: title, body: body, button: button}
}

type dialog struct {
	term   *Terminal
	title  string
	body   string
	button string

	mu       sync.Mutex
	disposed bool
}

// Render returns the dialog box as it is drawn.
func (d *dialog) Render() string {
	title := lipgloss.NewStyle().Foreground(colorError).Bold(true).Render(d.title)
	button := lipgloss.NewStyle().Foreground(colorMuted).Render(fmt.Sprintf("[ %s ]", d.button))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorError).
		Padding(0, 1)

	return box.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", d.body, "", button))
}

// Open shows the dialog and blocks until it is acknowledged, then disposes
// it. Opening a disposed dialog does nothing.
func (d *dialog) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}

	d.term.write(d.Render() + "\n")
	if d.term.input != nil {
		// Any line, or EOF, acknowledges the dialog.
		_, _ = d.term.input.ReadString('\n')
	}
	d.disposed = true
}

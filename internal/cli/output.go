// Package cli provides terminal output helpers for registryctl.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines, colored when attached to a terminal.
type Printer struct {
	w        io.Writer
	colorize bool
}

// NewPrinter returns a Printer for stdout.
func NewPrinter() *Printer {
	return &Printer{w: os.Stdout, colorize: isTerminal(os.Stdout)}
}

// NewPlainPrinter returns a Printer that never emits color codes.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Colorize wraps text in color when the printer is colored.
func (p *Printer) Colorize(text, color string) string {
	if !p.colorize {
		return text
	}
	return color + text + ColorReset
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...interface{}) {
	p.line("✓", ColorGreen, format, args...)
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line("⚠", ColorYellow, format, args...)
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...interface{}) {
	p.line("✗", ColorRed, format, args...)
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...interface{}) {
	p.line("ℹ", ColorBlue, format, args...)
}

func (p *Printer) line(mark, color, format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize(mark, color), fmt.Sprintf(format, args...))
}

// Spinner shows activity while waiting on the chain. On a non-terminal it
// prints the prefix once and stays quiet.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	printer *Printer
	started time.Time

	mu     sync.Mutex
	active bool
	done   chan struct{}
}

// NewSpinner creates a spinner writing through p.
func (p *Printer) NewSpinner(prefix string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
		printer: p,
		done:    make(chan struct{}),
	}
}

// Start begins animating.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.started = time.Now()
	s.mu.Unlock()

	if !s.printer.colorize {
		fmt.Fprintf(s.printer.w, "%s...\n", s.prefix)
		return
	}

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.active {
					s.render()
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	if s.printer.colorize {
		fmt.Fprint(s.printer.w, "\r"+strings.Repeat(" ", 80)+"\r")
	}
}

// Success stops the spinner and prints message with the elapsed time.
func (s *Spinner) Success(format string, args ...interface{}) {
	elapsed := s.elapsed()
	s.Stop()
	s.printer.Success("%s (%s)", fmt.Sprintf(format, args...), FormatDuration(elapsed))
}

// Error stops the spinner and prints message.
func (s *Spinner) Error(format string, args ...interface{}) {
	s.Stop()
	s.printer.Error(format, args...)
}

func (s *Spinner) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

func (s *Spinner) render() {
	frame := s.printer.Colorize(s.frames[s.current], ColorCyan)
	fmt.Fprintf(s.printer.w, "\r%s %s", frame, s.prefix)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// FormatDuration renders d coarsely for humans.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY reports whether w is a terminal. Writers without an Fd method,
// such as *bytes.Buffer, never are.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar shows how far a multi-step operation such as a replay has got.
//
//	[==========>         ]  50% conda install --name copy pandas
//
// On a terminal the bar redraws in place; elsewhere a line is written per
// step so logs stay readable.
type ProgressBar struct {
	mu          sync.Mutex
	total       int
	current     int
	description string
	width       int
	writer      io.Writer
}

// NewProgress returns a bar for total steps writing to stdout.
func NewProgress(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		description: description,
		width:       30,
		writer:      os.Stdout,
	}
}

// SetWriter sets the output writer.
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Step advances the bar by one and replaces its description.
func (p *ProgressBar) Step(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < p.total {
		p.current++
	}
	p.description = description
	p.render()
}

// Finish ends the bar's line on a terminal.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writerIsTTY(p.writer) {
		fmt.Fprintln(p.writer)
	}
}

// render draws the bar. Callers hold p.mu.
func (p *ProgressBar) render() {
	percentage, filled := 100, p.width
	if p.total > 0 {
		percentage = p.current * 100 / p.total
		filled = p.current * p.width / p.total
	}

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteString("=")
		case i == filled-1:
			bar.WriteString(">")
		default:
			bar.WriteString(" ")
		}
	}
	bar.WriteString("]")

	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r\033[K%s %3d%% %s", bar.String(), percentage, p.description)
		return
	}
	fmt.Fprintf(p.writer, "(%d/%d) %s\n", p.current, p.total, p.description)
}

// Spinner shows that a package manager is still running.
//
//	/  conda install pandas (12s elapsed)
//
// Non-terminal writers get the message once, with no animation.
type Spinner struct {
	mu      sync.Mutex
	message string
	writer  io.Writer
	running bool
	started time.Time
	timeout time.Duration
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSpinner returns a stopped spinner writing to stderr, so it never mixes
// with command output on stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		writer:  os.Stderr,
		done:    make(chan struct{}),
	}
}

// WithTimeout shows the time left before timeout instead of the time elapsed.
// Call it before Start.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	return s
}

// SetWriter sets the output writer.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go s.spin()
}

func (s *Spinner) spin() {
	frames := []string{"|", "/", "-", "\\"}
	for i := 0; ; i++ {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			fmt.Fprintf(s.writer, "\r\033[K%s  %s", frames[i%len(frames)], s.status())
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// status renders the message with timing. Callers hold s.mu.
func (s *Spinner) status() string {
	elapsed := time.Since(s.started)
	if s.timeout > 0 {
		remaining := s.timeout - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("%s (%s remaining)", s.message, remaining.Round(time.Second))
	}
	return fmt.Sprintf("%s (%s elapsed)", s.message, elapsed.Round(time.Second))
}

// Stop ends the animation and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)

	if writerIsTTY(s.writer) {
		fmt.Fprint(s.writer, "\r\033[K")
	}
}

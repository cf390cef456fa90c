package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a single status line while a wallet flow blocks, for
// example while a bridge wallet approves a pairing.
type Spinner struct {
	out      io.Writer
	msg      string
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner that draws to out.
func NewSpinner(out io.Writer, msg string) *Spinner {
	return &Spinner{
		out:      out,
		msg:      msg,
		interval: 80 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the animation in a goroutine.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			frame := StyleChain.Render(spinnerFrames[i%len(spinnerFrames)])
			fmt.Fprintf(s.out, "\r%s  %s", frame, s.msg)
			select {
			case <-s.stop:
				fmt.Fprintf(s.out, "\r%-*s\r", len(s.msg)+4, "")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and clears its line. It is safe to call more
// than once, and before Start.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// StopWithMsg halts the spinner and prints a final line.
func (s *Spinner) StopWithMsg(msg string) {
	s.Stop()
	fmt.Fprintln(s.out, msg)
}

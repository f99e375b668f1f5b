package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// spinner shows progress with elapsed time on a terminal line. It writes to its own writer so
// stdout stays clean for the file listing.
type spinner struct {
	out     io.Writer
	message string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newSpinner(out io.Writer, message string) (s *spinner) {
	s = &spinner{
		out:     out,
		message: message,
	}
	return s
}

func (s *spinner) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.spin(s.stop, s.done)
}

func (s *spinner) spin(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frames := []string{"|", "/", "-", "\\"}
	started := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	width := 0
	for i := 0; ; i++ {
		line := fmt.Sprintf("%s %s %.1fs", s.message, frames[i%len(frames)], time.Since(started).Seconds())
		width = max(width, len(line))
		_, _ = fmt.Fprintf(s.out, "\r%s", line)

		select {
		case <-stop:
			_, _ = fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", width))
			return
		case <-ticker.C:
		}
	}
}

func (s *spinner) stopSpinner() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

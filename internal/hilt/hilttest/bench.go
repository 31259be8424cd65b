// Package hilttest provides an in-memory tester for driver tests.
package hilttest

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ReadTimeout is how long Read waits before reporting no data.
const ReadTimeout = 5 * time.Millisecond

// Bench is a Transport that behaves like the tester firmware. Read commands
// are answered from the configured pin levels and ADC codes; everything
// written is recorded.
type Bench struct {
	mu       sync.Mutex
	pending  []byte
	commands []string
	digital  map[string]bool
	analog   map[string]int
	respond  func(cmd string) (string, bool)
	closed   bool
	notify   chan struct{}
}

// NewBench creates a bench with every digital pin low and every ADC at zero.
func NewBench() *Bench {
	return &Bench{
		digital: make(map[string]bool),
		analog:  make(map[string]int),
		notify:  make(chan struct{}, 1),
	}
}

// SetDigital sets the level reported for selector (e.g. "0d").
func (b *Bench) SetDigital(selector string, high bool) {
	b.mu.Lock()
	b.digital[selector] = high
	b.mu.Unlock()
}

// SetAnalog sets the ADC code reported for selector (e.g. "9a").
func (b *Bench) SetAnalog(selector string, code int) {
	b.mu.Lock()
	b.analog[selector] = code
	b.mu.Unlock()
}

// Respond overrides the reply to commands. fn receives the command without
// its delimiters and returns the raw bytes to send back; returning false
// falls through to the default reply. fn runs with the bench locked and must
// not call back into it.
func (b *Bench) Respond(fn func(cmd string) (string, bool)) {
	b.mu.Lock()
	b.respond = fn
	b.mu.Unlock()
}

// Inject queues raw bytes for the driver to read.
func (b *Bench) Inject(raw string) {
	b.mu.Lock()
	b.pending = append(b.pending, raw...)
	b.mu.Unlock()
	b.wake()
}

// Commands returns every command written so far, without delimiters.
func (b *Bench) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

// CountPrefix returns how many written commands start with prefix.
func (b *Bench) CountPrefix(prefix string) int {
	n := 0
	for _, c := range b.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (b *Bench) Read(p []byte) (int, error) {
	deadline := time.NewTimer(ReadTimeout)
	defer deadline.Stop()
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return 0, io.EOF
		}
		if len(b.pending) > 0 {
			n := copy(p, b.pending)
			b.pending = b.pending[n:]
			b.mu.Unlock()
			return n, nil
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-deadline.C:
			return 0, nil
		}
	}
}

func (b *Bench) Write(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	var replies strings.Builder
	for _, cmd := range strings.Split(string(p), ";") {
		if cmd == "" {
			continue
		}
		b.commands = append(b.commands, cmd)
		if b.respond != nil {
			if r, ok := b.respond(cmd); ok {
				replies.WriteString(r)
				continue
			}
		}
		replies.WriteString(b.reply(cmd))
	}
	b.pending = append(b.pending, replies.String()...)
	b.mu.Unlock()
	b.wake()
	return len(p), nil
}

func (b *Bench) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
	return nil
}

func (b *Bench) reply(cmd string) string {
	if len(cmd) != 3 {
		return ""
	}
	sel := cmd[1:]
	switch cmd[0] {
	case 'd':
		level := 0
		if b.digital[sel] {
			level = 1
		}
		return fmt.Sprintf("G%s%d;", sel, level)
	case 'a':
		return fmt.Sprintf("N%s%05d;", sel, b.analog[sel])
	}
	return ""
}

func (b *Bench) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

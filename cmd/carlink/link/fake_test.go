package link

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errFakeClosed = errors.New("port closed")

// fakePort is an in-memory serial port. Writes of the probe command are
// answered with reply, if set.
type fakePort struct {
	name  string
	reply string

	mu       sync.Mutex
	opened   int
	closed   bool
	timeout  time.Duration
	pending  []byte
	written  bytes.Buffer
	readErr  error
	writeErr error
	drainErr error
	signal   chan struct{}
}

func newFakePort(name, reply string) *fakePort {
	return &fakePort{
		name:   name,
		reply:  reply,
		signal: make(chan struct{}, 1),
	}
}

func (p *fakePort) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Feed queues bytes for the reader.
func (p *fakePort) Feed(data string) {
	p.mu.Lock()
	p.pending = append(p.pending, data...)
	p.mu.Unlock()
	p.notify()
}

// Fail makes the next reads return err.
func (p *fakePort) Fail(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
	p.notify()
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()
	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, errFakeClosed
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()
			return 0, err
		}
		if len(p.pending) > 0 {
			n := copy(buf, p.pending)
			p.pending = p.pending[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()
		select {
		case <-p.signal:
		case <-deadline:
			return 0, nil
		}
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errFakeClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	p.written.Write(data)
	respond := p.reply != "" && string(data) == string(QueryStatus)+"\n"
	p.mu.Unlock()
	if respond {
		p.Feed(p.reply)
	}
	return len(data), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

func (p *fakePort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drainErr
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *fakePort) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

func (p *fakePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeHost is a set of fake ports with a lister and an opener.
type fakeHost struct {
	mu     sync.Mutex
	order  []string
	ports  map[string]*fakePort
	broken map[string]bool
	scans  []time.Time
}

func newFakeHost(ports ...*fakePort) *fakeHost {
	h := &fakeHost{
		ports:  map[string]*fakePort{},
		broken: map[string]bool{},
	}
	for _, p := range ports {
		h.order = append(h.order, p.name)
		h.ports[p.name] = p
	}
	return h
}

func (h *fakeHost) List() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scans = append(h.scans, time.Now())
	return append([]string(nil), h.order...), nil
}

func (h *fakeHost) Open(name string, baud int) (Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.broken[name] {
		return nil, fmt.Errorf("permission denied")
	}
	p, ok := h.ports[name]
	if !ok {
		return nil, fmt.Errorf("no such port")
	}
	// Reopening a port yields a fresh connection.
	p.mu.Lock()
	p.closed = false
	p.readErr = nil
	p.opened++
	p.mu.Unlock()
	return p, nil
}

func (h *fakeHost) Scans() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.scans...)
}

type connEvent struct {
	connected bool
	message   string
}

type recorder struct {
	mu     sync.Mutex
	events []connEvent
	lines  []string
}

func (r *recorder) ConnectionChanged(connected bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, connEvent{connected, message})
}

func (r *recorder) LineReceived(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) Events() []connEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]connEvent(nil), r.events...)
}

package transport

import (
	"context"
	"sync"
)

// Pipe is an in-process request/reply pair. The server end implements
// Transport, the client end implements Requester.
type Pipe struct {
	reqs chan []byte
	reps chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending bool
}

// NewPipe returns an unbuffered request/reply pair.
func NewPipe() *Pipe {
	return &Pipe{
		reqs:   make(chan []byte),
		reps:   make(chan []byte),
		closed: make(chan struct{}),
	}
}

// Recv implements Transport.
func (p *Pipe) Recv(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	if p.pending {
		p.mu.Unlock()
		return nil, ErrOutOfSequence
	}
	p.mu.Unlock()

	select {
	case b := <-p.reqs:
		p.mu.Lock()
		p.pending = true
		p.mu.Unlock()
		return b, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send implements Transport.
func (p *Pipe) Send(ctx context.Context, b []byte) error {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return ErrOutOfSequence
	}
	p.pending = false
	p.mu.Unlock()

	select {
	case p.reps <- b:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request implements Requester.
func (p *Pipe) Request(ctx context.Context, b []byte) ([]byte, error) {
	select {
	case p.reqs <- b:
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-p.reps:
		return r, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unblocks both ends. Safe to call more than once.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// ZMQ is a REP socket bound to a local endpoint.
type ZMQ struct {
	sock zmq4.Socket

	closeOnce sync.Once
	closeErr  error
}

// ListenZMQ binds a REP socket at endpoint (for example "tcp://*:5555").
// The socket lives until Close or until ctx is cancelled.
func ListenZMQ(ctx context.Context, endpoint string) (*ZMQ, error) {
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("listen %s: %w", endpoint, err)
	}
	return &ZMQ{sock: sock}, nil
}

// Recv implements Transport.
func (z *ZMQ) Recv(ctx context.Context) ([]byte, error) {
	msg, err := z.sock.Recv()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("zmq recv: %w", err)
	}
	return msg.Bytes(), nil
}

// Send implements Transport.
func (z *ZMQ) Send(ctx context.Context, b []byte) error {
	if err := z.sock.Send(zmq4.NewMsg(b)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("zmq send: %w", err)
	}
	return nil
}

// Close releases the socket. Safe to call more than once.
func (z *ZMQ) Close() error {
	z.closeOnce.Do(func() {
		z.closeErr = z.sock.Close()
	})
	return z.closeErr
}

// ZMQClient is a REQ socket connected to a relay.
type ZMQClient struct {
	mu   sync.Mutex
	sock zmq4.Socket
}

// DialZMQ connects a REQ socket to endpoint (for example "tcp://localhost:5555").
func DialZMQ(ctx context.Context, endpoint string) (*ZMQClient, error) {
	sock := zmq4.NewReq(ctx)
	if err := sock.Dial(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &ZMQClient{sock: sock}, nil
}

// Request sends b and waits for the reply.
func (c *ZMQClient) Request(ctx context.Context, b []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		if err := c.sock.Send(zmq4.NewMsg(b)); err != nil {
			done <- result{err: fmt.Errorf("zmq send: %w", err)}
			return
		}
		msg, err := c.sock.Recv()
		if err != nil {
			done <- result{err: fmt.Errorf("zmq recv: %w", err)}
			return
		}
		done <- result{b: msg.Bytes()}
	}()

	select {
	case r := <-done:
		return r.b, r.err
	case <-ctx.Done():
		// A REQ socket cannot recover from an abandoned request.
		c.sock.Close()
		return nil, ctx.Err()
	}
}

// Close releases the socket.
func (c *ZMQClient) Close() error {
	return c.sock.Close()
}

// Package transport carries request/reply byte frames between the
// simulation and the relay. Implementations enforce strict alternation:
// one Send per Recv, in order.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrOutOfSequence is returned when Recv and Send do not alternate.
	ErrOutOfSequence = errors.New("request/reply out of sequence")
)

// Transport is the server side of a request/reply channel.
type Transport interface {
	// Recv blocks until the next request arrives.
	Recv(ctx context.Context) ([]byte, error)
	// Send replies to the request returned by the last Recv.
	Send(ctx context.Context, b []byte) error
	Close() error
}

// Requester is the client side of a request/reply channel.
type Requester interface {
	Request(ctx context.Context, b []byte) ([]byte, error)
	Close() error
}

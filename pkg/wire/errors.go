package wire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Decode failure causes. DecodeError wraps one of these.
var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrTruncated  = errors.New("truncated frame")
	ErrMalformed  = errors.New("malformed frame")
)

// previewBytes bounds the hex preview carried by DecodeError.
const previewBytes = 32

// DecodeError reports a frame that could not be decoded. Len is the size
// of the whole input and Preview is the hex of at most 32 leading bytes.
type DecodeError struct {
	Len     int
	Preview string
	Err     error
}

func newDecodeError(b []byte, err error) *DecodeError {
	head := b
	if len(head) > previewBytes {
		head = head[:previewBytes]
	}
	return &DecodeError{
		Len:     len(b),
		Preview: hex.EncodeToString(head),
		Err:     err,
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed: %v (len=%d, head=%s)", e.Err, e.Len, e.Preview)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// parseError converts a negative protowire length into one of the
// package sentinels.
func parseError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func wrongType(msg string, num protowire.Number, typ protowire.Type) error {
	return fmt.Errorf("%w: %s field %d has wire type %d", ErrMalformed, msg, num, typ)
}

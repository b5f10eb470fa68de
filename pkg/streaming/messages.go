// Package streaming defines the subscriber side of the broadcast channel:
// snapshot pushes as JSON text frames and a text ping/pong liveness probe.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/relay/pkg/core"
)

// Liveness probe frames. Subscribers send Ping, the server answers Pong.
const (
	Ping = "ping"
	Pong = "pong"
)

// IsPing reports whether a text frame is a liveness probe.
func IsPing(b []byte) bool {
	return string(b) == Ping
}

// EncodeSnapshot renders a snapshot push payload.
func EncodeSnapshot(s core.Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot parses a snapshot push payload.
func DecodeSnapshot(b []byte) (core.Snapshot, error) {
	var s core.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return core.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}

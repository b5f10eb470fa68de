// pkg/core/snapshot.go
package core

import "time"

// Snapshot is the relay's single authoritative view of the battlefield.
// A published Snapshot is never modified; updates publish a new one.
type Snapshot struct {
	Seq         uint64          `json:"seq"`
	Timestamp   *time.Time      `json:"timestamp"`
	SimTime     float64         `json:"simTime"`
	Platforms   []PlatformState `json:"platforms"`
	Targets     []TargetState   `json:"targets"`
	MessageKind string          `json:"messageKind"`
}

// EmptySnapshot is the state before any status report arrives.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Platforms:   []PlatformState{},
		Targets:     []TargetState{},
		MessageKind: KindNone,
	}
}

// HasData reports whether a status report has filled the snapshot.
func (s Snapshot) HasData() bool {
	return s.Timestamp != nil
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Timestamp != nil {
		ts := *s.Timestamp
		out.Timestamp = &ts
	}
	out.Platforms = ClonePlatforms(s.Platforms)
	out.Targets = CloneTargets(s.Targets)
	return out
}

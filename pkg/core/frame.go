// pkg/core/frame.go
package core

// Body is the populated variant of a Frame. Only the variant types in
// this package implement it.
type Body interface {
	isBody()
}

// Frame is one decoded inbound message. A nil Body is a structurally
// valid frame with no variant populated.
type Frame struct {
	Body Body
}

// StatusReport carries the full current platform and target picture.
// It is the only variant that replaces the relay's snapshot.
type StatusReport struct {
	Timestamp float64
	Platforms []PlatformState
	Targets   []TargetState
}

// PlanRequest asks for a platform-to-target assignment.
type PlanRequest struct {
	Timestamp float64
	Platforms []PlatformState
	Targets   []TargetState
	Reason    string
}

// EntityKilled reports the destruction of a platform or target.
type EntityKilled struct {
	Timestamp float64
	EntityID  uint32
	KillerID  uint32
	IsTarget  bool
}

// Damage reports a hit that did not necessarily kill.
type Damage struct {
	Timestamp  float64
	EntityID   uint32
	AttackerID uint32
	Amount     float64
}

// Fired reports a weapon release.
type Fired struct {
	Timestamp float64
	ShooterID uint32
	Weapon    string
	TargetID  uint32
	Origin    Vec2
}

func (*StatusReport) isBody() {}
func (*PlanRequest) isBody() {}
func (*EntityKilled) isBody() {}
func (*Damage) isBody() {}
func (*Fired) isBody() {}

// pkg/core/types.go
package core

import "fmt"

// Vec2 is a world-plane position. Units are meters by convention.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AmmoState holds remaining munitions per class.
type AmmoState struct {
	Missile uint32 `json:"missile"`
	Bomb    uint32 `json:"bomb"`
	Rocket  uint32 `json:"rocket"`
}

// Role is the combat role of a platform.
type Role int32

const (
	RoleUnknown Role = iota
	RoleAntiPersonnel
	RoleAntiArmor
	RoleMultiRole
)

var roleNames = map[Role]string{
	RoleUnknown:       "Unknown",
	RoleAntiPersonnel: "AntiPersonnel",
	RoleAntiArmor:     "AntiArmor",
	RoleMultiRole:     "MultiRole",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Role(%d)", int32(r))
}

// MarshalText renders the role by name so pushed snapshots stay readable.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (r *Role) UnmarshalText(b []byte) error {
	for k, v := range roleNames {
		if v == string(b) {
			*r = k
			return nil
		}
	}
	var n int32
	if _, err := fmt.Sscanf(string(b), "Role(%d)", &n); err != nil {
		return fmt.Errorf("unknown role %q", b)
	}
	*r = Role(n)
	return nil
}

// TargetKind classifies a target.
type TargetKind int32

const (
	TargetUnknown TargetKind = iota
	TargetInfantry
	TargetArmor
	TargetSAM
	TargetOther
)

var targetKindNames = map[TargetKind]string{
	TargetUnknown:  "Unknown",
	TargetInfantry: "Infantry",
	TargetArmor:    "Armor",
	TargetSAM:      "SAM",
	TargetOther:    "Other",
}

func (k TargetKind) String() string {
	if s, ok := targetKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TargetKind(%d)", int32(k))
}

func (k TargetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TargetKind) UnmarshalText(b []byte) error {
	for kind, v := range targetKindNames {
		if v == string(b) {
			*k = kind
			return nil
		}
	}
	var n int32
	if _, err := fmt.Sscanf(string(b), "TargetKind(%d)", &n); err != nil {
		return fmt.Errorf("unknown target kind %q", b)
	}
	*k = TargetKind(n)
	return nil
}

// PlatformState is one friendly shooter as reported by the simulation.
// ID is unique within a report only; the simulation reuses IDs on respawn.
type PlatformState struct {
	ID          uint32    `json:"id"`
	Role        Role      `json:"role"`
	Pos         Vec2      `json:"pos"`
	Alive       bool      `json:"alive"`
	HitProb     float64   `json:"hitProb"`
	Cost        float64   `json:"cost"`
	MaxRange    float64   `json:"maxRange"`
	MaxTargets  uint32    `json:"maxTargets"`
	Quantity    uint32    `json:"quantity"`
	Ammo        AmmoState `json:"ammo"`
	TargetTypes []int32   `json:"targetTypes"`

	// Optional enrichment.
	PlatformType string   `json:"platformType,omitempty"`
	Magazines    []string `json:"magazines,omitempty"`
	Fuel         *float64 `json:"fuel,omitempty"`
	Damage       *float64 `json:"damage,omitempty"`
}

// Clone returns a copy that shares no memory with p.
func (p PlatformState) Clone() PlatformState {
	out := p
	if p.TargetTypes != nil {
		out.TargetTypes = append([]int32(nil), p.TargetTypes...)
	}
	if p.Magazines != nil {
		out.Magazines = append([]string(nil), p.Magazines...)
	}
	if p.Fuel != nil {
		v := *p.Fuel
		out.Fuel = &v
	}
	if p.Damage != nil {
		v := *p.Damage
		out.Damage = &v
	}
	return out
}

// TargetState is one hostile entity as reported by the simulation.
// PrerequisiteTargets is advisory; the relay does not enforce ordering.
type TargetState struct {
	ID                  uint32     `json:"id"`
	Kind                TargetKind `json:"kind"`
	Pos                 Vec2       `json:"pos"`
	Alive               bool       `json:"alive"`
	Value               float64    `json:"value"`
	Tier                uint32     `json:"tier"`
	TargetType          string     `json:"targetType,omitempty"`
	PrerequisiteTargets []uint32   `json:"prerequisiteTargets,omitempty"`
}

// Clone returns a copy that shares no memory with t.
func (t TargetState) Clone() TargetState {
	out := t
	if t.PrerequisiteTargets != nil {
		out.PrerequisiteTargets = append([]uint32(nil), t.PrerequisiteTargets...)
	}
	return out
}

// ClonePlatforms deep-copies a platform list. A nil list stays nil.
func ClonePlatforms(in []PlatformState) []PlatformState {
	if in == nil {
		return nil
	}
	out := make([]PlatformState, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// CloneTargets deep-copies a target list. A nil list stays nil.
func CloneTargets(in []TargetState) []TargetState {
	if in == nil {
		return nil
	}
	out := make([]TargetState, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

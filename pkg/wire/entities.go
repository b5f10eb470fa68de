package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/OCAP2/relay/pkg/core"
)

func appendVec2(b []byte, num protowire.Number, v core.Vec2) []byte {
	var body []byte
	body = appendDouble(body, 1, v.X)
	body = appendDouble(body, 2, v.Y)
	return appendMessage(b, num, body)
}

func decodeVec2(f field) (core.Vec2, error) {
	var v core.Vec2
	if err := expect("vec2", f, protowire.BytesType); err != nil {
		return v, err
	}
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readDouble("vec2", f, &v.X)
		case 2:
			return readDouble("vec2", f, &v.Y)
		}
		return nil
	})
	return v, err
}

func appendAmmo(b []byte, num protowire.Number, a core.AmmoState) []byte {
	var body []byte
	body = appendUint(body, 1, uint64(a.Missile))
	body = appendUint(body, 2, uint64(a.Bomb))
	body = appendUint(body, 3, uint64(a.Rocket))
	return appendMessage(b, num, body)
}

func decodeAmmo(f field) (core.AmmoState, error) {
	var a core.AmmoState
	if err := expect("ammo", f, protowire.BytesType); err != nil {
		return a, err
	}
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readUint32("ammo", f, &a.Missile)
		case 2:
			return readUint32("ammo", f, &a.Bomb)
		case 3:
			return readUint32("ammo", f, &a.Rocket)
		}
		return nil
	})
	return a, err
}

func appendPlatform(b []byte, num protowire.Number, p core.PlatformState) []byte {
	var body []byte
	body = appendUint(body, 1, uint64(p.ID))
	body = appendInt32(body, 2, int32(p.Role))
	body = appendVec2(body, 3, p.Pos)
	body = appendBool(body, 4, p.Alive)
	body = appendDouble(body, 5, p.HitProb)
	body = appendDouble(body, 6, p.Cost)
	body = appendDouble(body, 7, p.MaxRange)
	body = appendUint(body, 8, uint64(p.MaxTargets))
	body = appendUint(body, 9, uint64(p.Quantity))
	body = appendAmmo(body, 10, p.Ammo)

	types := make([]uint64, len(p.TargetTypes))
	for i, t := range p.TargetTypes {
		types[i] = uint64(int64(t))
	}
	body = appendPackedVarints(body, 11, types)

	body = appendString(body, 12, p.PlatformType)
	for _, m := range p.Magazines {
		body = protowire.AppendTag(body, 13, protowire.BytesType)
		body = protowire.AppendString(body, m)
	}
	body = appendOptionalDouble(body, 14, p.Fuel)
	body = appendOptionalDouble(body, 15, p.Damage)
	return appendMessage(b, num, body)
}

func decodePlatform(f field) (core.PlatformState, error) {
	const msg = "platform"
	var p core.PlatformState
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return p, err
	}
	err := walk(f.b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			return readUint32(msg, f, &p.ID)
		case 2:
			return readInt32(msg, f, (*int32)(&p.Role))
		case 3:
			p.Pos, err = decodeVec2(f)
		case 4:
			return readBool(msg, f, &p.Alive)
		case 5:
			return readDouble(msg, f, &p.HitProb)
		case 6:
			return readDouble(msg, f, &p.Cost)
		case 7:
			return readDouble(msg, f, &p.MaxRange)
		case 8:
			return readUint32(msg, f, &p.MaxTargets)
		case 9:
			return readUint32(msg, f, &p.Quantity)
		case 10:
			p.Ammo, err = decodeAmmo(f)
		case 11:
			return consumeVarints(msg, f, func(v uint64) {
				p.TargetTypes = append(p.TargetTypes, int32(v))
			})
		case 12:
			return readString(msg, f, &p.PlatformType)
		case 13:
			var m string
			if err := readString(msg, f, &m); err != nil {
				return err
			}
			p.Magazines = append(p.Magazines, m)
		case 14:
			var v float64
			if err := readDouble(msg, f, &v); err != nil {
				return err
			}
			p.Fuel = &v
		case 15:
			var v float64
			if err := readDouble(msg, f, &v); err != nil {
				return err
			}
			p.Damage = &v
		}
		return err
	})
	return p, err
}

func appendTarget(b []byte, num protowire.Number, t core.TargetState) []byte {
	var body []byte
	body = appendUint(body, 1, uint64(t.ID))
	body = appendInt32(body, 2, int32(t.Kind))
	body = appendVec2(body, 3, t.Pos)
	body = appendBool(body, 4, t.Alive)
	body = appendDouble(body, 5, t.Value)
	body = appendUint(body, 6, uint64(t.Tier))
	body = appendString(body, 7, t.TargetType)

	prereq := make([]uint64, len(t.PrerequisiteTargets))
	for i, id := range t.PrerequisiteTargets {
		prereq[i] = uint64(id)
	}
	body = appendPackedVarints(body, 8, prereq)
	return appendMessage(b, num, body)
}

func decodeTarget(f field) (core.TargetState, error) {
	const msg = "target"
	var t core.TargetState
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return t, err
	}
	err := walk(f.b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			return readUint32(msg, f, &t.ID)
		case 2:
			return readInt32(msg, f, (*int32)(&t.Kind))
		case 3:
			t.Pos, err = decodeVec2(f)
		case 4:
			return readBool(msg, f, &t.Alive)
		case 5:
			return readDouble(msg, f, &t.Value)
		case 6:
			return readUint32(msg, f, &t.Tier)
		case 7:
			return readString(msg, f, &t.TargetType)
		case 8:
			return consumeVarints(msg, f, func(v uint64) {
				t.PrerequisiteTargets = append(t.PrerequisiteTargets, uint32(v))
			})
		}
		return err
	})
	return t, err
}

package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/OCAP2/relay/pkg/core"
)

// Envelope body field numbers.
const (
	fieldStatusReport protowire.Number = 1
	fieldPlanRequest  protowire.Number = 2
	fieldEntityKilled protowire.Number = 3
	fieldDamage       protowire.Number = 4
	fieldFired        protowire.Number = 5
)

// DecodeFrame parses one binary frame. Any failure is returned as a
// *DecodeError; an empty buffer fails with ErrEmptyFrame.
//
// A frame with no known body field decodes to an empty Frame. When more
// than one body field is present the first one on the wire wins and the
// rest are skipped.
func DecodeFrame(b []byte) (core.Frame, error) {
	if len(b) == 0 {
		return core.Frame{}, newDecodeError(b, ErrEmptyFrame)
	}

	var frame core.Frame
	err := walk(b, func(f field) error {
		if frame.Body != nil {
			return nil
		}
		var (
			body core.Body
			err  error
		)
		switch f.num {
		case fieldStatusReport:
			body, err = decodeStatusReport(f)
		case fieldPlanRequest:
			body, err = decodePlanRequest(f)
		case fieldEntityKilled:
			body, err = decodeEntityKilled(f)
		case fieldDamage:
			body, err = decodeDamage(f)
		case fieldFired:
			body, err = decodeFired(f)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		frame.Body = body
		return nil
	})
	if err != nil {
		return core.Frame{}, newDecodeError(b, err)
	}
	return frame, nil
}

// EncodeFrame serializes f. A frame without a body encodes to an empty
// buffer, which DecodeFrame rejects with ErrEmptyFrame, so the empty frame
// is the one value that does not round-trip.
func EncodeFrame(f core.Frame) []byte {
	var b []byte
	switch body := f.Body.(type) {
	case *core.StatusReport:
		if body != nil {
			b = appendMessage(b, fieldStatusReport, encodeStatusReport(body))
		}
	case *core.PlanRequest:
		if body != nil {
			b = appendMessage(b, fieldPlanRequest, encodePlanRequest(body))
		}
	case *core.EntityKilled:
		if body != nil {
			b = appendMessage(b, fieldEntityKilled, encodeEntityKilled(body))
		}
	case *core.Damage:
		if body != nil {
			b = appendMessage(b, fieldDamage, encodeDamage(body))
		}
	case *core.Fired:
		if body != nil {
			b = appendMessage(b, fieldFired, encodeFired(body))
		}
	}
	return b
}

func encodeStatusReport(r *core.StatusReport) []byte {
	var b []byte
	b = appendDouble(b, 1, r.Timestamp)
	for _, p := range r.Platforms {
		b = appendPlatform(b, 2, p)
	}
	for _, t := range r.Targets {
		b = appendTarget(b, 3, t)
	}
	return b
}

func decodeStatusReport(f field) (*core.StatusReport, error) {
	const msg = "status_report"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return nil, err
	}
	r := &core.StatusReport{}
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readDouble(msg, f, &r.Timestamp)
		case 2:
			p, err := decodePlatform(f)
			if err != nil {
				return err
			}
			r.Platforms = append(r.Platforms, p)
		case 3:
			t, err := decodeTarget(f)
			if err != nil {
				return err
			}
			r.Targets = append(r.Targets, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func encodePlanRequest(r *core.PlanRequest) []byte {
	var b []byte
	b = appendDouble(b, 1, r.Timestamp)
	for _, p := range r.Platforms {
		b = appendPlatform(b, 2, p)
	}
	for _, t := range r.Targets {
		b = appendTarget(b, 3, t)
	}
	b = appendString(b, 4, r.Reason)
	return b
}

func decodePlanRequest(f field) (*core.PlanRequest, error) {
	const msg = "plan_request"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return nil, err
	}
	r := &core.PlanRequest{}
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readDouble(msg, f, &r.Timestamp)
		case 2:
			p, err := decodePlatform(f)
			if err != nil {
				return err
			}
			r.Platforms = append(r.Platforms, p)
		case 3:
			t, err := decodeTarget(f)
			if err != nil {
				return err
			}
			r.Targets = append(r.Targets, t)
		case 4:
			return readString(msg, f, &r.Reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func encodeEntityKilled(e *core.EntityKilled) []byte {
	var b []byte
	b = appendDouble(b, 1, e.Timestamp)
	b = appendUint(b, 2, uint64(e.EntityID))
	b = appendUint(b, 3, uint64(e.KillerID))
	b = appendBool(b, 4, e.IsTarget)
	return b
}

func decodeEntityKilled(f field) (*core.EntityKilled, error) {
	const msg = "entity_killed"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return nil, err
	}
	e := &core.EntityKilled{}
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readDouble(msg, f, &e.Timestamp)
		case 2:
			return readUint32(msg, f, &e.EntityID)
		case 3:
			return readUint32(msg, f, &e.KillerID)
		case 4:
			return readBool(msg, f, &e.IsTarget)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func encodeDamage(d *core.Damage) []byte {
	var b []byte
	b = appendDouble(b, 1, d.Timestamp)
	b = appendUint(b, 2, uint64(d.EntityID))
	b = appendUint(b, 3, uint64(d.AttackerID))
	b = appendDouble(b, 4, d.Amount)
	return b
}

func decodeDamage(f field) (*core.Damage, error) {
	const msg = "damage"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return nil, err
	}
	d := &core.Damage{}
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readDouble(msg, f, &d.Timestamp)
		case 2:
			return readUint32(msg, f, &d.EntityID)
		case 3:
			return readUint32(msg, f, &d.AttackerID)
		case 4:
			return readDouble(msg, f, &d.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func encodeFired(e *core.Fired) []byte {
	var b []byte
	b = appendDouble(b, 1, e.Timestamp)
	b = appendUint(b, 2, uint64(e.ShooterID))
	b = appendString(b, 3, e.Weapon)
	b = appendUint(b, 4, uint64(e.TargetID))
	b = appendVec2(b, 5, e.Origin)
	return b
}

func decodeFired(f field) (*core.Fired, error) {
	const msg = "fired"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return nil, err
	}
	e := &core.Fired{}
	err := walk(f.b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			return readDouble(msg, f, &e.Timestamp)
		case 2:
			return readUint32(msg, f, &e.ShooterID)
		case 3:
			return readString(msg, f, &e.Weapon)
		case 4:
			return readUint32(msg, f, &e.TargetID)
		case 5:
			e.Origin, err = decodeVec2(f)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

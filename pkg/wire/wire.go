// Package wire encodes and decodes the relay's binary frames. The format
// is Protocol Buffers; messages are walked field by field with protowire
// so the relay carries no generated code.
package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded key/value pair. For varint and fixed types the
// value is in v; for length-delimited fields it is in b.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

func (f field) asDouble() float64 { return math.Float64frombits(f.v) }
func (f field) asUint32() uint32  { return uint32(f.v) }
func (f field) asInt32() int32    { return int32(f.v) }
func (f field) asBool() bool      { return protowire.DecodeBool(f.v) }

// walk calls fn for every field in b. Groups are skipped.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return parseError(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return parseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// expect checks the wire type of a known field.
func expect(msg string, f field, typ protowire.Type) error {
	if f.typ != typ {
		return wrongType(msg, f.num, typ)
	}
	return nil
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendOptionalDouble(b []byte, num protowire.Number, v *float64) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(*v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendInt32 sign-extends negative values, matching proto int32 encoding.
func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendUint(b, num, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage writes a length-delimited sub-message, even when empty,
// so that presence survives a round trip.
func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// appendPackedVarints writes a packed repeated varint field.
func appendPackedVarints(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// consumeVarints accepts both packed and unpacked encodings of a
// repeated varint field, as proto parsers are required to.
func consumeVarints(msg string, f field, fn func(uint64)) error {
	switch f.typ {
	case protowire.VarintType:
		fn(f.v)
		return nil
	case protowire.BytesType:
		b := f.b
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return parseError(n)
			}
			fn(v)
			b = b[n:]
		}
		return nil
	default:
		return wrongType(msg, f.num, protowire.VarintType)
	}
}

func readDouble(msg string, f field, dst *float64) error {
	if err := expect(msg, f, protowire.Fixed64Type); err != nil {
		return err
	}
	*dst = f.asDouble()
	return nil
}

func readUint32(msg string, f field, dst *uint32) error {
	if err := expect(msg, f, protowire.VarintType); err != nil {
		return err
	}
	*dst = f.asUint32()
	return nil
}

func readInt32(msg string, f field, dst *int32) error {
	if err := expect(msg, f, protowire.VarintType); err != nil {
		return err
	}
	*dst = f.asInt32()
	return nil
}

func readBool(msg string, f field, dst *bool) error {
	if err := expect(msg, f, protowire.VarintType); err != nil {
		return err
	}
	*dst = f.asBool()
	return nil
}

func readString(msg string, f field, dst *string) error {
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return err
	}
	*dst = string(f.b)
	return nil
}

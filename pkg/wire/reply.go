package wire

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/OCAP2/relay/pkg/core"
)

// EncodeReply serializes r. It cannot fail: every Reply value has an
// encoding. Assignment entries are written in key order so equal replies
// encode to equal bytes.
func EncodeReply(r core.Reply) []byte {
	var b []byte
	b = appendString(b, 1, r.Status)
	b = appendDouble(b, 2, r.Timestamp)
	b = appendDouble(b, 3, r.BestFitness)

	keys := make([]uint32, 0, len(r.Assignment))
	for k := range r.Assignment {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		var entry []byte
		entry = appendUint(entry, 1, uint64(k))
		entry = appendUint(entry, 2, uint64(r.Assignment[k]))
		b = appendMessage(b, 4, entry)
	}

	b = appendUint(b, 5, uint64(r.NPlatforms))
	b = appendUint(b, 6, uint64(r.NTargets))

	var stats []byte
	stats = appendDouble(stats, 1, r.Stats.ComputationTime)
	stats = appendUint(stats, 2, uint64(r.Stats.Iterations))
	stats = appendBool(stats, 3, r.Stats.IsValid)
	stats = appendDouble(stats, 4, r.Stats.CoverageRate)
	b = appendMessage(b, 7, stats)

	b = appendDouble(b, 8, r.TTLSec)
	b = appendString(b, 9, r.ErrorMsg)
	return b
}

// DecodeReply parses a reply produced by EncodeReply. The returned
// Assignment is never nil.
func DecodeReply(b []byte) (core.Reply, error) {
	const msg = "reply"
	r := core.Reply{Assignment: map[uint32]uint32{}}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			return readString(msg, f, &r.Status)
		case 2:
			return readDouble(msg, f, &r.Timestamp)
		case 3:
			return readDouble(msg, f, &r.BestFitness)
		case 4:
			return decodeAssignmentEntry(f, r.Assignment)
		case 5:
			return readUint32(msg, f, &r.NPlatforms)
		case 6:
			return readUint32(msg, f, &r.NTargets)
		case 7:
			return decodeStats(f, &r.Stats)
		case 8:
			return readDouble(msg, f, &r.TTLSec)
		case 9:
			return readString(msg, f, &r.ErrorMsg)
		}
		return nil
	})
	if err != nil {
		return core.Reply{}, newDecodeError(b, err)
	}
	return r, nil
}

func decodeAssignmentEntry(f field, dst map[uint32]uint32) error {
	const msg = "assignment"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return err
	}
	var k, v uint32
	err := walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readUint32(msg, f, &k)
		case 2:
			return readUint32(msg, f, &v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	dst[k] = v
	return nil
}

func decodeStats(f field, s *core.ReplyStats) error {
	const msg = "stats"
	if err := expect(msg, f, protowire.BytesType); err != nil {
		return err
	}
	return walk(f.b, func(f field) error {
		switch f.num {
		case 1:
			return readDouble(msg, f, &s.ComputationTime)
		case 2:
			return readUint32(msg, f, &s.Iterations)
		case 3:
			return readBool(msg, f, &s.IsValid)
		case 4:
			return readDouble(msg, f, &s.CoverageRate)
		}
		return nil
	})
}

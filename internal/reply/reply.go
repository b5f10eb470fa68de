// Package reply builds the reply for each classified request. Every
// builder returns a complete core.Reply: status set, assignment non-nil,
// stats populated. Requesters rely on that.
package reply

import (
	"time"

	"github.com/OCAP2/relay/internal/planner"
	"github.com/OCAP2/relay/pkg/core"
)

// Error messages sent to requesters.
const (
	MsgUnknownVariant = "Unknown message type"
	MsgDecodeFailed   = "Protobuf decode failed"
)

// DefaultPlanTTL is the advisory validity window of a plan reply, in
// seconds.
const DefaultPlanTTL = 2.0

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func base(status string, now time.Time) core.Reply {
	return core.Reply{
		Status:     status,
		Timestamp:  unixSeconds(now),
		Assignment: map[uint32]uint32{},
	}
}

// Ack acknowledges a status report or an event message.
func Ack(now time.Time) core.Reply {
	return base(core.StatusOK, now)
}

// Plan answers a plan request with the solver's result. Platform and
// target counts are echoed from the request.
func Plan(req *core.PlanRequest, res planner.Result, ttl float64, now time.Time) core.Reply {
	r := base(core.StatusOK, now)
	for p, t := range res.Assignment {
		r.Assignment[p] = t
	}
	r.BestFitness = res.Fitness
	r.NPlatforms = uint32(len(req.Platforms))
	r.NTargets = uint32(len(req.Targets))
	r.Stats = core.ReplyStats{
		ComputationTime: res.ComputationTime.Seconds(),
		Iterations:      res.Iterations,
		IsValid:         res.IsValid,
		CoverageRate:    res.CoverageRate,
	}
	r.TTLSec = ttl
	return r
}

// UnknownVariant answers a frame with no recognized variant.
func UnknownVariant(now time.Time) core.Reply {
	return Failure(MsgUnknownVariant, now)
}

// DecodeFailed answers a frame that could not be decoded.
func DecodeFailed(now time.Time) core.Reply {
	return Failure(MsgDecodeFailed, now)
}

// Failure is an error reply with the given message.
func Failure(msg string, now time.Time) core.Reply {
	r := base(core.StatusError, now)
	r.ErrorMsg = msg
	return r
}

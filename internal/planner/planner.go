// Package planner is the boundary to the target-assignment solver. The
// relay ships only a stub; a real solver plugs in behind Solver.
package planner

import (
	"context"
	"time"

	"github.com/OCAP2/relay/pkg/core"
)

// Problem is the input to a solve.
type Problem struct {
	Platforms []core.PlatformState
	Targets   []core.TargetState
	Reason    string
}

// Result is a solver's answer. Assignment maps platform ID to target ID.
type Result struct {
	Assignment      map[uint32]uint32
	Fitness         float64
	Iterations      uint32
	IsValid         bool
	CoverageRate    float64
	ComputationTime time.Duration
}

// Solver computes assignments.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Result, error)
}

// Stub answers every problem with an empty, valid assignment.
type Stub struct{}

// Solve implements Solver.
func (Stub) Solve(ctx context.Context, p Problem) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		Assignment:      map[uint32]uint32{},
		IsValid:         true,
		ComputationTime: time.Since(start),
	}, nil
}

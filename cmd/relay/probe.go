package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OCAP2/relay/internal/config"
	"github.com/OCAP2/relay/internal/transport"
	"github.com/OCAP2/relay/pkg/core"
	"github.com/OCAP2/relay/pkg/wire"
)

func newProbeCmd() *cobra.Command {
	var (
		endpoint string
		kind     string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send a sample request to a running relay and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				endpoint = dialEndpoint(config.GetIngestConfig().Endpoint)
			}
			frame, err := sampleFrame(kind, time.Now())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := transport.DialZMQ(ctx, endpoint)
			if err != nil {
				return err
			}
			defer client.Close()

			return probe(ctx, client, frame, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&endpoint, "endpoint", "e", "", "relay endpoint (default from ingest.endpoint)")
	flags.StringVarP(&kind, "kind", "k", core.KindStatusReport.String(),
		"sample to send: status_report or plan_request")
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	return cmd
}

// probe sends one frame and writes the decoded reply as JSON.
func probe(ctx context.Context, r transport.Requester, f core.Frame, out io.Writer) error {
	raw, err := r.Request(ctx, wire.EncodeFrame(f))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	rep, err := wire.DecodeReply(raw)
	if err != nil {
		return fmt.Errorf("bad reply: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// dialEndpoint turns a bind endpoint such as tcp://*:5555 into one a
// client can dial.
func dialEndpoint(bind string) string {
	if port, ok := strings.CutPrefix(bind, "tcp://*:"); ok {
		return "tcp://127.0.0.1:" + port
	}
	return bind
}

func samplePicture() ([]core.PlatformState, []core.TargetState) {
	platforms := []core.PlatformState{
		{ID: 1, Role: core.RoleAntiArmor, Pos: core.Vec2{X: 0, Y: 0}, Alive: true,
			HitProb: 0.8, Cost: 1, MaxRange: 5000, MaxTargets: 2, Quantity: 1,
			Ammo: core.AmmoState{Missile: 4}},
		{ID: 2, Role: core.RoleMultiRole, Pos: core.Vec2{X: 250, Y: -100}, Alive: true,
			HitProb: 0.6, Cost: 2, MaxRange: 8000, MaxTargets: 1, Quantity: 1,
			Ammo: core.AmmoState{Bomb: 2, Rocket: 8}},
	}
	targets := []core.TargetState{
		{ID: 10, Kind: core.TargetArmor, Pos: core.Vec2{X: 3000, Y: 1200}, Alive: true, Value: 5, Tier: 1},
		{ID: 11, Kind: core.TargetSAM, Pos: core.Vec2{X: 4200, Y: -800}, Alive: true, Value: 8, Tier: 1},
	}
	return platforms, targets
}

func sampleFrame(kind string, now time.Time) (core.Frame, error) {
	ts := float64(now.UnixNano()) / 1e9
	platforms, targets := samplePicture()

	switch kind {
	case core.KindStatusReport.String():
		return core.Frame{Body: &core.StatusReport{
			Timestamp: ts, Platforms: platforms, Targets: targets,
		}}, nil
	case core.KindPlanRequest.String():
		return core.Frame{Body: &core.PlanRequest{
			Timestamp: ts, Platforms: platforms, Targets: targets, Reason: "probe",
		}}, nil
	default:
		return core.Frame{}, fmt.Errorf("unsupported probe kind %q", kind)
	}
}

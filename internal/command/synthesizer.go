// Package command turns an assignment decision into a vehicle action
// command: a loiter over the task location plus one gimbal stare per
// gimbal payload.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/fleetsync/fleetsync/internal/geo"
	"github.com/fleetsync/fleetsync/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

const (
	// StandardGravity in m/s².
	StandardGravity = 9.81

	// radiusSafetyFactor widens the loiter beyond the tightest turn the
	// vehicle can fly.
	radiusSafetyFactor = 1.5

	defaultFootprintSegments = 36
)

var (
	ErrNoConfiguration      = errors.New("vehicle has no configuration")
	ErrNoState              = errors.New("vehicle has no state")
	ErrNoFlightProfile      = errors.New("vehicle configuration has no flight profile")
	ErrInvalidFlightProfile = errors.New("invalid flight profile")
)

// TurnRadius returns the loiter radius in meters for the given airspeed
// (m/s) and maximum bank angle (degrees).
func TurnRadius(airspeed, bankAngle float64) float64 {
	return radiusSafetyFactor * airspeed * airspeed / (StandardGravity * math.Tan(bankAngle*math.Pi/180))
}

// FootprintSink receives the loiter footprint of each synthesized command.
type FootprintSink interface {
	LoiterFootprint(vehicleID int64, footprint geom.Polygon)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithFootprintSink publishes the loiter circle of every command to sink.
func WithFootprintSink(sink FootprintSink) Option {
	return func(s *Synthesizer) {
		s.footprints = sink
	}
}

// WithFootprintSegments sets the vertex count of published footprints.
func WithFootprintSegments(n int) Option {
	return func(s *Synthesizer) {
		s.segments = n
	}
}

// Synthesizer builds commands. Command IDs increase monotonically per
// Synthesizer.
type Synthesizer struct {
	nextID     atomic.Int64
	footprints FootprintSink
	segments   int
	logger     *slog.Logger
}

func NewSynthesizer(logger *slog.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		segments: defaultFootprintSegments,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds the command for vehicleID to service task. cfg and
// state may be nil, in which case the matching error is returned and no
// command is produced.
func (s *Synthesizer) Synthesize(
	vehicleID int64,
	task core.PointSearchTask,
	cfg *core.VehicleConfiguration,
	state *core.VehicleState,
) (*core.VehicleActionCommand, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vehicle %d: %w", vehicleID, ErrNoConfiguration)
	}
	if state == nil {
		return nil, fmt.Errorf("vehicle %d: %w", vehicleID, ErrNoState)
	}
	profile := cfg.NominalFlightProfile
	if profile == nil {
		return nil, fmt.Errorf("vehicle %d: %w", vehicleID, ErrNoFlightProfile)
	}
	if profile.Airspeed <= 0 || profile.MaxBankAngle <= 0 || profile.MaxBankAngle >= 90 {
		return nil, fmt.Errorf("vehicle %d: %w: airspeed=%f bank=%f",
			vehicleID, ErrInvalidFlightProfile, profile.Airspeed, profile.MaxBankAngle)
	}

	radius := TurnRadius(profile.Airspeed, profile.MaxBankAngle)

	cmd := &core.VehicleActionCommand{
		CommandID:      s.nextID.Add(1),
		VehicleID:      vehicleID,
		AssociatedTask: task.TaskID,
		Loiter: core.LoiterAction{
			// hold current altitude over the target
			Location:  task.SearchLocation.WithAltitude(state.Location.Altitude),
			Radius:    radius,
			Direction: core.LoiterCounterClockwise,
			Type:      core.LoiterCircular,
			Airspeed:  profile.Airspeed,
			Duration:  core.IndefiniteDuration,
		},
	}

	for _, p := range cfg.GimbalPayloads() {
		cmd.GimbalStares = append(cmd.GimbalStares, core.GimbalStareAction{
			PayloadID:  p.PayloadID,
			Starepoint: task.SearchLocation,
			Duration:   core.IndefiniteDuration,
		})
	}

	s.publishFootprint(cmd)

	return cmd, nil
}

func (s *Synthesizer) publishFootprint(cmd *core.VehicleActionCommand) {
	if s.footprints == nil {
		return
	}
	poly, err := geo.LoiterFootprint(cmd.Loiter.Location, cmd.Loiter.Radius, s.segments)
	if err != nil {
		s.logger.Warn("Skipping loiter footprint", "vehicle", cmd.VehicleID, "error", err)
		return
	}
	s.footprints.LoiterFootprint(cmd.VehicleID, poly)
}

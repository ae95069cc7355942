// Package allocator assigns a single task to the nearest vehicle able to
// take it. It is greedy and online: candidates are tried nearest first and
// the first successful command ends the allocation.
package allocator

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fleetsync/fleetsync/internal/fleet"
	"github.com/fleetsync/fleetsync/internal/geo"
	"github.com/fleetsync/fleetsync/pkg/core"
)

// Synthesizer builds the command for one candidate.
type Synthesizer interface {
	Synthesize(vehicleID int64, task core.PointSearchTask, cfg *core.VehicleConfiguration, state *core.VehicleState) (*core.VehicleActionCommand, error)
}

// Sender delivers a command. Delivery errors are the sender's concern and
// are not reported back.
type Sender interface {
	Send(msg any)
}

// Reporter receives the outcome of every allocation.
type Reporter interface {
	ReportAllocation(o Outcome)
}

// Candidate is a vehicle under consideration and its distance to the target.
type Candidate struct {
	VehicleID int64
	Distance  float64
}

// Outcome summarizes one Allocate call.
type Outcome struct {
	TaskID     int64
	Assigned   bool
	VehicleID  int64   // valid when Assigned
	Distance   float64 // valid when Assigned
	CommandID  int64   // valid when Assigned
	Candidates int
	Attempts   int
	Duration   time.Duration
}

// Dependencies holds everything the allocator needs.
type Dependencies struct {
	Synthesizer Synthesizer
	Sender      Sender
	Reporter    Reporter     // optional
	Meter       metric.Meter // optional, global meter when nil
	Logger      *slog.Logger
}

// Allocator runs the greedy assignment.
type Allocator struct {
	deps Dependencies

	attempts    metric.Int64Counter
	assignments metric.Int64Counter
	unassigned  metric.Int64Counter
	duration    metric.Float64Histogram
}

// New creates an Allocator.
func New(deps Dependencies) (*Allocator, error) {
	if deps.Meter == nil {
		deps.Meter = meter()
	}
	a := &Allocator{deps: deps}

	var err error
	a.attempts, err = deps.Meter.Int64Counter(
		"allocator.attempts",
		metric.WithDescription("Candidates tried for synthesis"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}

	a.assignments, err = deps.Meter.Int64Counter(
		"allocator.assignments",
		metric.WithDescription("Tasks assigned to a vehicle"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments counter: %w", err)
	}

	a.unassigned, err = deps.Meter.Int64Counter(
		"allocator.unassigned",
		metric.WithDescription("Tasks no candidate could take"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unassigned counter: %w", err)
	}

	a.duration, err = deps.Meter.Float64Histogram(
		"allocator.duration",
		metric.WithDescription("Allocation wall time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return a, nil
}

// Rank returns every vehicle with a known state ordered by great-circle
// distance to target, nearest first. Equal distances are ordered by
// ascending vehicle ID. A vehicle whose distance cannot be computed is
// ranked at +Inf.
func Rank(target core.Location, view fleet.View) []Candidate {
	ids := view.StateIDs()
	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		st, _ := view.State(id)
		d := geo.Distance(st.Location, target)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			// unusable coordinates rank last
			d = math.Inf(1)
		}
		candidates = append(candidates, Candidate{
			VehicleID: id,
			Distance:  d,
		})
	}
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Or(
			cmp.Compare(a.Distance, b.Distance),
			cmp.Compare(a.VehicleID, b.VehicleID),
		)
	})
	return candidates
}

// Allocate assigns task to the nearest vehicle in view that can be
// commanded, and reports whether a command was sent. The candidate set is
// fixed when the call starts and every iteration removes one candidate, so
// at most len(candidates) attempts are made.
func (a *Allocator) Allocate(task core.PointSearchTask, view fleet.View) bool {
	start := time.Now()
	logger := a.deps.Logger.With("task", task.TaskID)

	candidates := Rank(task.SearchLocation, view)
	outcome := Outcome{TaskID: task.TaskID, Candidates: len(candidates)}

	for len(candidates) > 0 {
		next := candidates[0]
		candidates = candidates[1:]
		outcome.Attempts++
		a.attempts.Add(context.Background(), 1)

		cmd, err := a.attempt(next.VehicleID, task, view)
		if err != nil {
			logger.Debug("Skipping candidate", "vehicle", next.VehicleID, "distance", next.Distance, "error", err)
			continue
		}

		a.deps.Sender.Send(cmd)

		outcome.Assigned = true
		outcome.VehicleID = next.VehicleID
		outcome.Distance = next.Distance
		outcome.CommandID = cmd.CommandID
		logger.Info("Task assigned",
			"vehicle", next.VehicleID,
			"distance", next.Distance,
			"command", cmd.CommandID,
			"attempts", outcome.Attempts,
		)
		break
	}

	if !outcome.Assigned {
		logger.Warn("Task not assigned", "candidates", outcome.Candidates)
	}

	outcome.Duration = time.Since(start)
	a.record(outcome)

	return outcome.Assigned
}

func (a *Allocator) attempt(vehicleID int64, task core.PointSearchTask, view fleet.View) (*core.VehicleActionCommand, error) {
	var cfgPtr *core.VehicleConfiguration
	if cfg, ok := view.Configuration(vehicleID); ok {
		cfgPtr = &cfg
	}
	var statePtr *core.VehicleState
	if st, ok := view.State(vehicleID); ok {
		statePtr = &st
	}
	return a.deps.Synthesizer.Synthesize(vehicleID, task, cfgPtr, statePtr)
}

func (a *Allocator) record(o Outcome) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("assigned", o.Assigned))

	if o.Assigned {
		a.assignments.Add(ctx, 1)
	} else {
		a.unassigned.Add(ctx, 1)
	}
	a.duration.Record(ctx, float64(o.Duration.Microseconds())/1000, attrs)

	if a.deps.Reporter != nil {
		a.deps.Reporter.ReportAllocation(o)
	}
}

package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsync/fleetsync/internal/allocator"
	"github.com/fleetsync/fleetsync/internal/connection"
	"github.com/fleetsync/fleetsync/internal/geo"
	"github.com/fleetsync/fleetsync/pkg/core"
	"github.com/fleetsync/fleetsync/pkg/wire"
)

var target = core.Location{Latitude: 40.0, Longitude: -75.0, Altitude: 10}

type pipeDialer struct {
	server chan net.Conn
}

func (d *pipeDialer) Dial(ctx context.Context, address string) (connection.Transport, error) {
	client, server := net.Pipe()
	d.server <- server
	return client, nil
}

type refusingDialer struct{}

func (refusingDialer) Dial(ctx context.Context, address string) (connection.Transport, error) {
	return nil, errors.New("connection refused")
}

type outcomeRecorder struct {
	outcomes chan allocator.Outcome
}

func (r *outcomeRecorder) ReportAllocation(o allocator.Outcome) {
	r.outcomes <- o
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	client   *Client
	server   net.Conn
	outcomes chan allocator.Outcome
	commands chan *core.VehicleActionCommand
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	d := &pipeDialer{server: make(chan net.Conn, 1)}
	rec := &outcomeRecorder{outcomes: make(chan allocator.Outcome, 10)}

	c, err := New(Config{Address: "sim:5555"}, Dependencies{
		Dialer:   d,
		Logger:   discardLogger(),
		Reporter: rec,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Start(context.Background()))

	h := &harness{
		client:   c,
		server:   <-d.server,
		outcomes: rec.outcomes,
		commands: make(chan *core.VehicleActionCommand, 10),
	}

	go func() {
		dec := wire.NewDecoder(h.server)
		for {
			msg, err := dec.Decode()
			if err != nil {
				return
			}
			if cmd, ok := msg.(*core.VehicleActionCommand); ok {
				h.commands <- cmd
			}
		}
	}()

	return h
}

func (h *harness) push(t *testing.T, msgs ...any) {
	t.Helper()
	for _, m := range msgs {
		data, err := wire.Marshal(m)
		require.NoError(t, err)
		_, err = h.server.Write(data)
		require.NoError(t, err)
	}
}

func (h *harness) outcome(t *testing.T) allocator.Outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no allocation outcome")
		return allocator.Outcome{}
	}
}

func vehicle(id int64, distance float64, gimbals int) (core.VehicleConfiguration, core.VehicleState) {
	cfg := core.VehicleConfiguration{
		ID:                   id,
		NominalFlightProfile: &core.FlightProfile{Airspeed: 30, MaxBankAngle: 30},
	}
	for i := 0; i < gimbals; i++ {
		cfg.Payloads = append(cfg.Payloads, core.PayloadConfiguration{
			PayloadID:  id*100 + int64(i),
			Capability: core.CapabilityGimbal,
		})
	}
	st := core.VehicleState{ID: id, Location: geo.Destination(target, 90, distance).WithAltitude(float64(id) * 100)}
	return cfg, st
}

func TestClient_TaskAssignedToNearestVehicle(t *testing.T) {
	h := newHarness(t)

	for id, d := range map[int64]float64{1: 50_000, 2: 10_000, 3: 30_000} {
		cfg, st := vehicle(id, d, 2)
		h.push(t, cfg, st)
	}
	h.push(t, core.PointSearchTask{TaskID: 100, SearchLocation: target})

	o := h.outcome(t)
	assert.True(t, o.Assigned)
	assert.Equal(t, int64(2), o.VehicleID)

	select {
	case cmd := <-h.commands:
		assert.Equal(t, int64(2), cmd.VehicleID)
		assert.Equal(t, int64(100), cmd.AssociatedTask)
		assert.Equal(t, 200.0, cmd.Loiter.Location.Altitude)
		assert.InDelta(t, 238.3, cmd.Loiter.Radius, 0.1)
		assert.Len(t, cmd.GimbalStares, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive command")
	}
}

func TestClient_ResetClearsFleet(t *testing.T) {
	h := newHarness(t)

	cfg, st := vehicle(1, 1_000, 1)
	h.push(t, cfg, st)
	h.push(t, core.SessionStatus{State: core.SessionReset, ScenarioTime: 5000})
	h.push(t, core.PointSearchTask{TaskID: 1, SearchLocation: target})

	o := h.outcome(t)
	assert.False(t, o.Assigned)
	assert.Zero(t, o.Attempts)

	configs, states := h.client.Store().Counts()
	assert.Zero(t, configs)
	assert.Zero(t, states)
	assert.Equal(t, 1, h.client.Session().Resets())

	select {
	case cmd := <-h.commands:
		t.Fatalf("unexpected command %+v", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_NonResetStatusKeepsFleet(t *testing.T) {
	h := newHarness(t)

	cfg, st := vehicle(1, 1_000, 0)
	h.push(t, cfg, st)
	h.push(t, core.SessionStatus{State: core.SessionPaused})
	h.push(t, core.PointSearchTask{TaskID: 1, SearchLocation: target})

	assert.True(t, h.outcome(t).Assigned)
	status, ok := h.client.Session().Status()
	require.True(t, ok)
	assert.Equal(t, core.SessionPaused, status.State)
}

func TestClient_UnknownMessageIgnored(t *testing.T) {
	h := newHarness(t)

	payload, err := cbor.Marshal(map[string]int{"vehicle": 1})
	require.NoError(t, err)
	raw, err := cbor.Marshal(wire.Envelope{Type: "air_vehicle_heartbeat", Payload: payload})
	require.NoError(t, err)
	_, err = h.server.Write(raw)
	require.NoError(t, err)

	cfg, st := vehicle(1, 1_000, 0)
	h.push(t, cfg, st)
	h.push(t, core.PointSearchTask{TaskID: 2, SearchLocation: target})

	assert.True(t, h.outcome(t).Assigned, "loop keeps running after an unknown message")
	assert.Equal(t, connection.Connected, h.client.State())
}

func TestClient_StateBeforeConfiguration(t *testing.T) {
	h := newHarness(t)

	cfg, st := vehicle(1, 1_000, 0)
	h.push(t, st)
	h.push(t, core.PointSearchTask{TaskID: 3, SearchLocation: target})
	assert.False(t, h.outcome(t).Assigned)

	h.push(t, cfg)
	h.push(t, core.PointSearchTask{TaskID: 4, SearchLocation: target})
	assert.True(t, h.outcome(t).Assigned)
}

func TestClient_AllocateFromCallerContext(t *testing.T) {
	h := newHarness(t)

	cfg, st := vehicle(5, 2_000, 1)
	h.client.Store().UpsertConfiguration(cfg)
	h.client.Store().UpsertState(st)

	assert.True(t, h.client.Allocate(core.PointSearchTask{TaskID: 8, SearchLocation: target}))

	select {
	case cmd := <-h.commands:
		assert.Equal(t, int64(5), cmd.VehicleID)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive command")
	}
}

func TestClient_SendFromCallerContext(t *testing.T) {
	h := newHarness(t)

	h.client.Send(core.VehicleActionCommand{
		CommandID: 77,
		VehicleID: 3,
		Loiter:    core.LoiterAction{Location: target, Radius: 500, Duration: core.IndefiniteDuration},
	})

	select {
	case cmd := <-h.commands:
		assert.Equal(t, int64(77), cmd.CommandID)
		assert.Equal(t, int64(3), cmd.VehicleID)
		assert.Equal(t, 500.0, cmd.Loiter.Radius)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive message")
	}
}

func TestClient_RunReturnsFatalReceiveError(t *testing.T) {
	d := &pipeDialer{server: make(chan net.Conn, 1)}
	c, err := New(Config{Address: "sim:5555"}, Dependencies{Dialer: d, Logger: discardLogger()})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	server := <-d.server
	_, _ = server.Write([]byte{0xff, 0xff})

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, connection.Disconnected, c.State())
}

func TestClient_RunStopsOnCancel(t *testing.T) {
	d := &pipeDialer{server: make(chan net.Conn, 1)}
	c, err := New(Config{Address: "sim:5555"}, Dependencies{Dialer: d, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	<-d.server
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestClient_RunCancelledWhileConnecting(t *testing.T) {
	c, err := New(Config{Address: "sim:5555", RetryInterval: time.Hour}, Dependencies{
		Dialer: refusingDialer{},
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
}

func TestNew_RequiresDialer(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}

package follower

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-follower/internal/clock"
	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

const oneSubject = `[{"person_id":7,"x":100,"y":240,"w":60,"h":200,"depth":1200,"confidence":0.9,"frame":1,"facing_screen":true,"wave_detected":false,"server_ts_ms":1,"keypoint_motions":[]}]`

// sensorStub serves one scripted connection per dial and counts dials.
func sensorStub(t *testing.T, script func(n int, conn *websocket.Conn)) (string, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(int(dials.Add(1)), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &dials
}

// holdOpen blocks until the peer goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.WebPort = ""
	cfg.TickInterval = 50 * time.Millisecond
	cfg.PresenceTimeout = time.Second
	cfg.ReconnectDelay = 200 * time.Millisecond
	cfg.StatusInterval = 0
	cfg.Sensor.PingInterval = 0
	return cfg
}

// startApp runs the app on a fake clock and stops it at cleanup.
func startApp(t *testing.T, cfg Config) (*App, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Unix(1_700_000_000, 0))

	app, err := New(cfg, WithClock(clk), WithLogger(log.Nop()))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Run did not return")
		}
		app.Shutdown()
	})
	return app, clk
}

func TestApp_FollowsAndClears(t *testing.T) {
	endpoint, _ := sensorStub(t, func(_ int, conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(oneSubject)); err != nil {
			return
		}
		holdOpen(conn)
	})
	cfg := testConfig(endpoint)
	app, clk := startApp(t, cfg)

	step := func() { clk.Advance(cfg.TickInterval) }

	require.Eventually(t, func() bool {
		step()
		return app.Status().HasTarget
	}, 2*time.Second, 5*time.Millisecond, "target never acquired")

	st := app.Status()
	assert.True(t, st.Present)
	assert.Equal(t, "connected", st.SensorState)
	assert.EqualValues(t, 1, st.Batches)
	wantX := cfg.Tracking.WorldLeft + 100.0/(cfg.Tracking.ImageWidth-1)*(cfg.Tracking.WorldRight-cfg.Tracking.WorldLeft)
	assert.InDelta(t, wantX, st.Target[0], 1e-9)

	// Nothing more arrives; the subject is cleared after the timeout.
	require.Eventually(t, func() bool {
		step()
		s := app.Status()
		return !s.Present && !s.HasTarget
	}, 2*time.Second, 5*time.Millisecond, "target never cleared")

	assert.EqualValues(t, 1, app.Status().Retargets)
}

func TestApp_Reconnects(t *testing.T) {
	endpoint, dials := sensorStub(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			// Drop the first connection abruptly
			return
		}
		holdOpen(conn)
	})
	cfg := testConfig(endpoint)
	app, clk := startApp(t, cfg)

	require.Eventually(t, func() bool {
		clk.Advance(cfg.TickInterval)
		return dials.Load() >= 2 && app.Status().SensorState == "connected"
	}, 3*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, app.Status().Reconnects, uint64(1))
}

func TestApp_NoRetryWhenDelayZero(t *testing.T) {
	endpoint, dials := sensorStub(t, func(int, *websocket.Conn) {})
	cfg := testConfig(endpoint)
	cfg.ReconnectDelay = 0
	app, clk := startApp(t, cfg)

	require.Eventually(t, func() bool {
		clk.Advance(cfg.TickInterval)
		return app.Status().SensorState == "disconnected"
	}, 2*time.Second, 5*time.Millisecond)

	for range 20 {
		clk.Advance(time.Second)
	}
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, dials.Load())
}

func TestApp_Tune(t *testing.T) {
	endpoint, _ := sensorStub(t, func(_ int, conn *websocket.Conn) { holdOpen(conn) })
	app, _ := startApp(t, testConfig(endpoint))

	require.Eventually(t, func() bool { return app.running.Load() }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, app.Tune(ctx, tracking.Tuning{MaxSpeed: tracking.Float(20), TurnSpeed: tracking.Float(2)}))
	got := app.Tuning()
	assert.Equal(t, 20.0, *got.MaxSpeed)
	assert.Equal(t, 2.0, *got.TurnSpeed)

	// Min above max is rejected and nothing changes
	var cerr *tracking.ConfigError
	err := app.Tune(ctx, tracking.Tuning{MinSpeed: tracking.Float(50)})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 20.0, *app.Tuning().MaxSpeed)
	assert.Equal(t, app.config.Tracking.MinSpeed, *app.Tuning().MinSpeed)

	// So are negative speeds
	require.ErrorAs(t, app.Tune(ctx, tracking.Tuning{MinSpeed: tracking.Float(-5), MaxSpeed: tracking.Float(-1)}), &cerr)
	assert.Equal(t, 20.0, *app.Tuning().MaxSpeed)
}

func TestApp_TuneBeforeRun(t *testing.T) {
	app, err := New(testConfig("ws://127.0.0.1:1"), WithLogger(log.Nop()))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	assert.ErrorIs(t, app.Tune(context.Background(), tracking.Tuning{MaxSpeed: tracking.Float(3)}), ErrNotRunning)
	assert.Equal(t, tracking.DefaultConfig().MaxSpeed, *app.Tuning().MaxSpeed)
}

func TestApp_RunBeforeInit(t *testing.T) {
	app, err := New(testConfig("ws://127.0.0.1:1"))
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()))
}

package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-follower/internal/clock"
	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/dispatch"
	"github.com/teslashibe/go-follower/pkg/presence"
	"github.com/teslashibe/go-follower/pkg/protocol"
	"github.com/teslashibe/go-follower/pkg/sensor"
	"github.com/teslashibe/go-follower/pkg/tracking"
	"github.com/teslashibe/go-follower/pkg/web"
)

// tuneTimeout bounds how long a dashboard tuning request waits for the
// tick loop to pick it up.
const tuneTimeout = 2 * time.Second

// ErrNotRunning is returned for tuning requests while the tick loop is
// not running.
var ErrNotRunning = errors.New("follower: tick loop not running")

type tuneRequest struct {
	tuning tracking.Tuning
	reply  chan error
}

// App is the follower application orchestrator.
// It owns every component and runs the single tick loop that drives them.
type App struct {
	config Config
	base   *slog.Logger
	log    *slog.Logger
	clock  clock.Clock

	// Ingestion
	queue      *dispatch.Queue[protocol.Batch]
	client     *sensor.Client
	dispatcher *dispatch.Dispatcher

	// Tick-owned state
	presence   *presence.Monitor
	controller *tracking.Controller
	lastTick   time.Time
	lastStatus time.Time
	poseSeq    uint64

	// Dashboard
	webServer *web.Server

	tune       chan tuneRequest
	tuning     atomic.Pointer[tracking.Tuning]
	running    atomic.Bool
	reconnects atomic.Uint64

	// Signalled by the sensor client when a connection drops
	dropped chan struct{}

	status   web.FollowerState
	statusMu sync.RWMutex

	wg sync.WaitGroup
}

// Option customizes an App.
type Option func(*App)

// WithClock replaces wall time, for tests.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithLogger sets the logger every component logs through.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.base = l }
}

// New creates a new follower application with the given configuration.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:  cfg,
		base:    log.L(),
		clock:   clock.Real(),
		tune:    make(chan tuneRequest),
		dropped: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.component("follower")
	return a, nil
}

func (a *App) component(name string) *slog.Logger {
	return a.base.With("component", name)
}

// Init builds and wires all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	a.queue = dispatch.NewQueue[protocol.Batch]()
	a.dispatcher = dispatch.New(a.queue)
	a.client = sensor.New(a.config.Sensor, a.queue, a.component("sensor"))

	mon, err := presence.New(a.config.PresenceTimeout, a.clock)
	if err != nil {
		return fmt.Errorf("presence init: %w", err)
	}
	a.presence = mon

	start := a.config.Start
	body := tracking.BodyFunc(func() tracking.Pose {
		return tracking.Pose{
			Position:    r3.Vec{X: start.X, Y: start.Y, Z: start.Z},
			Orientation: quat.Number{Real: 1},
		}
	})
	ctrl, err := tracking.New(a.config.Tracking, body)
	if err != nil {
		return fmt.Errorf("tracking init: %w", err)
	}
	ctrl.SetLogger(a.component("tracking"))
	a.controller = ctrl
	a.publishTuning()

	if a.config.WebPort != "" {
		a.webServer = web.NewServer(a.config.WebPort)
		a.webServer.OnGetTuning = a.Tuning
		a.webServer.OnSetTuning = func(t tracking.Tuning) error {
			return a.Tune(context.Background(), t)
		}
	}

	a.wire()
	return nil
}

// wire connects component events. Everything registered here runs on the
// tick goroutine, except the sensor callbacks.
func (a *App) wire() {
	a.dispatcher.Subscribe(a.presence.Observe)
	a.dispatcher.Subscribe(func(b protocol.Batch) { a.controller.Observe(b) })

	a.presence.OnPresent(func() {
		a.log.Info("subject detected")
		a.publish(web.Event{Type: web.EventPresent})
		a.addLog("presence", "subject detected")
	})
	a.presence.OnCleared(func() {
		a.log.Info("subject lost, clearing target", "timeout", a.presence.Timeout())
		a.controller.Clear()
		a.publish(web.Event{Type: web.EventCleared})
		a.addLog("presence", "subject lost")
	})

	a.controller.OnAdvance(func(p tracking.Pose) {
		a.poseSeq++
		if a.webServer != nil {
			a.webServer.Publish(web.PoseEvent(a.poseSeq, a.clock.Now().UnixMilli(), p))
		}
	})

	a.client.OnError(func(err error) {
		var derr *protocol.DecodeError
		if errors.As(err, &derr) {
			a.addLog("error", "malformed sensor message dropped")
			return
		}
		a.addLog("sensor", err.Error())
	})
	a.client.OnState(func(s sensor.State) {
		a.addLog("sensor", "sensor "+s.String())
		if s == sensor.StateDisconnected {
			select {
			case a.dropped <- struct{}{}:
			default:
			}
		}
	})
}

// Run starts the dashboard and the connection loop, then runs the tick
// loop. Blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.controller == nil {
		return errors.New("follower: Run called before Init")
	}

	if a.webServer != nil {
		a.webServer.StartAsync()
		a.addLog("info", "follower started")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.connectLoop(ctx)
	}()

	ticker := a.clock.NewTicker(a.config.TickInterval)
	defer ticker.Stop()

	a.running.Store(true)
	defer a.running.Store(false)
	a.lastTick = a.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-a.tune:
			req.reply <- a.applyTuning(req.tuning)
		case now := <-ticker.C:
			a.tick(now)
		}
	}
}

// tick runs one frame: deliver batches, check presence, advance the
// controller.
func (a *App) tick(now time.Time) {
	dt := now.Sub(a.lastTick)
	if dt < 0 {
		dt = 0
	}
	a.lastTick = now

	a.dispatcher.Tick()
	a.presence.Tick()
	a.controller.Advance(dt)

	if a.config.StatusInterval == 0 || now.Sub(a.lastStatus) >= a.config.StatusInterval {
		a.lastStatus = now
		a.updateStatus()
	}
}

// connectLoop keeps the sensor connected. Failed attempts and dropped
// connections are retried after ReconnectDelay.
func (a *App) connectLoop(ctx context.Context) {
	endpoint := a.config.Endpoint
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			a.reconnects.Add(1)
		}

		// A failed dial also reports Disconnected; forget it
		select {
		case <-a.dropped:
		default:
		}

		err := a.client.Connect(ctx, endpoint)
		switch {
		case err == nil, errors.Is(err, sensor.ErrAlreadyConnected):
			// Wait for the connection to drop
			select {
			case <-ctx.Done():
				return
			case <-a.dropped:
			}
		case errors.Is(err, sensor.ErrClosed):
			return
		default:
			a.log.Warn("sensor unavailable", "endpoint", endpoint, "error", err)
		}

		if a.config.ReconnectDelay == 0 {
			a.log.Info("reconnect disabled, giving up on sensor")
			return
		}
		if !a.sleep(ctx, a.config.ReconnectDelay) {
			return
		}
	}
}

// sleep waits d on the app clock. Returns false if ctx ended first.
func (a *App) sleep(ctx context.Context, d time.Duration) bool {
	t := a.clock.NewTicker(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Tune hands new tuning parameters to the tick loop and waits for the
// result. Safe to call from any goroutine.
func (a *App) Tune(ctx context.Context, t tracking.Tuning) error {
	if !a.running.Load() {
		return ErrNotRunning
	}
	req := tuneRequest{tuning: t, reply: make(chan error, 1)}

	ctx, cancel := context.WithTimeout(ctx, tuneTimeout)
	defer cancel()

	select {
	case a.tune <- req:
	case <-ctx.Done():
		return fmt.Errorf("follower: tuning not applied: %w", ctx.Err())
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("follower: tuning not applied: %w", ctx.Err())
	}
}

func (a *App) applyTuning(t tracking.Tuning) error {
	if err := a.controller.Tune(t); err != nil {
		return err
	}
	a.publishTuning()
	return nil
}

func (a *App) publishTuning() {
	t := a.controller.Tuning()
	a.tuning.Store(&t)
}

// Tuning returns the active tuning parameters. Safe from any goroutine.
func (a *App) Tuning() tracking.Tuning {
	if t := a.tuning.Load(); t != nil {
		return *t
	}
	return tracking.Tuning{}
}

// Status returns the most recent status snapshot. Safe from any goroutine.
func (a *App) Status() web.FollowerState {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *App) updateStatus() {
	stats := a.client.Stats()
	snap := a.controller.Snapshot()
	lastSeen, _ := a.presence.LastSeen()

	st := web.FollowerState{
		SensorState:    stats.State,
		SensorEndpoint: stats.Endpoint,
		SessionID:      stats.SessionID,
		Messages:       stats.Messages,
		Batches:        stats.Batches,
		DecodeErrors:   stats.DecodeErrors,
		Reconnects:     a.reconnects.Load(),
		Ticks:          a.dispatcher.Ticks(),
		Delivered:      a.dispatcher.Delivered(),
		Present:        a.presence.Present(),
		LastSeen:       lastSeen,
		HasTarget:      snap.HasTarget,
		Position:       [3]float64{snap.Rendered.X, snap.Rendered.Y, snap.Rendered.Z},
		Target:         [3]float64{snap.Target.X, snap.Target.Y, snap.Target.Z},
		Distance:       snap.Distance,
		Speed:          snap.Speed,
		Arrived:        snap.Arrived,
		Retargets:      snap.Retargets,
		Inert:          snap.Inert,
		UpdatedAt:      a.clock.Now(),
	}

	a.statusMu.Lock()
	a.status = st
	a.statusMu.Unlock()

	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.FollowerState) { *s = st })
	}
}

func (a *App) publish(e web.Event) {
	if a.webServer == nil {
		return
	}
	e.TimestampMs = a.clock.Now().UnixMilli()
	a.webServer.Publish(e)
}

func (a *App) addLog(kind, msg string) {
	if a.webServer != nil {
		a.webServer.AddLog(kind, msg)
	}
}

// Shutdown closes the sensor connection and the dashboard. Call it after
// Run has returned.
func (a *App) Shutdown() {
	a.log.Info("shutting down")

	if a.client != nil {
		a.client.Close()
	}
	a.wg.Wait()
	if a.queue != nil {
		a.queue.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
}

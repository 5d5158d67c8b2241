// follower connects to a person-detection sensor and drives a virtual
// entity that follows the detected subject. A live dashboard is served on
// --port.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/teslashibe/go-follower/internal/config"
	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, level, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	log.Init(level)

	app, err := follower.New(cfg)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := app.Init(); err != nil {
		return fmt.Errorf("initialization: %w", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("follower running",
		"sensor", cfg.Endpoint,
		"dashboard", cfg.WebPort,
		"tick", cfg.TickInterval)

	return app.Run(ctx)
}

// parseFlags builds the configuration. Precedence, lowest first:
// defaults, --preset, config file, environment, explicit flags.
func parseFlags(args []string) (follower.Config, string, error) {
	cfg := follower.DefaultConfig()

	flags := pflag.NewFlagSet("follower", pflag.ContinueOnError)
	sensorURL := flags.String("sensor", cfg.Endpoint, "sensor WebSocket endpoint (host:port or ws:// URL)")
	port := flags.String("port", cfg.WebPort, "dashboard port, empty to disable")
	path := flags.String("config", "", "YAML or JSONC config file")
	level := flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	preset := flags.String("preset", "default", "tracking preset: default, slow, calm")
	tick := flags.Duration("tick", cfg.TickInterval, "tick interval")
	presenceTimeout := flags.Duration("presence-timeout", cfg.PresenceTimeout, "clear the target after this much sensor silence")
	reconnect := flags.Duration("reconnect", cfg.ReconnectDelay, "delay between connection attempts, 0 to never retry")

	if err := flags.Parse(args); err != nil {
		return cfg, "", err
	}

	switch *preset {
	case "default":
	case "slow":
		cfg.Tracking = tracking.SlowConfig()
	case "calm":
		cfg.Tracking = tracking.CalmConfig()
	default:
		return cfg, "", fmt.Errorf("unknown preset %q", *preset)
	}

	if *path == "" {
		*path = config.ConfigPath()
	}
	if *path != "" {
		if err := config.Load(*path, &cfg); err != nil {
			return cfg, "", err
		}
	}

	cfg.LoadEnvConfig()
	logLevel := config.LogLevel(*level)

	if flags.Changed("sensor") {
		cfg.Endpoint = *sensorURL
	}
	if flags.Changed("port") {
		cfg.WebPort = *port
	}
	if flags.Changed("log-level") {
		logLevel = *level
	}
	if flags.Changed("tick") {
		cfg.TickInterval = *tick
	}
	if flags.Changed("presence-timeout") {
		cfg.PresenceTimeout = *presenceTimeout
	}
	if flags.Changed("reconnect") {
		cfg.ReconnectDelay = *reconnect
	}
	return cfg, logLevel, nil
}

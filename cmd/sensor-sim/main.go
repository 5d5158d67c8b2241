// sensor-sim serves a synthetic person stream in the sensor wire format so
// the follower can run without a camera.
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
	"github.com/teslashibe/go-follower/pkg/protocol"
	"github.com/teslashibe/go-follower/pkg/sim"
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
	cfg := sim.DefaultConfig()

	flags := pflag.NewFlagSet("sensor-sim", pflag.ContinueOnError)
	addr := flags.String("addr", sim.DefaultAddr, "listen address")
	encoding := flags.String("encoding", "json", "frame encoding: json or cbor")
	level := flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.IntVar(&cfg.People, "people", cfg.People, "subjects walking across the frame")
	flags.DurationVar(&cfg.Interval, "interval", cfg.Interval, "time between frames")
	flags.Float64Var(&cfg.Speed, "speed", cfg.Speed, "walking speed, pixels per second")
	flags.Float64Var(&cfg.Jitter, "jitter", cfg.Jitter, "detector noise, pixels")
	flags.IntVar(&cfg.EmptyEvery, "empty-every", 0, "inject an empty frame every N frames")
	flags.IntVar(&cfg.MalformedEvery, "malformed-every", 0, "send an undecodable frame every N frames")
	flags.BoolVar(&cfg.SendEmpty, "send-empty", false, "send [] when nobody is in frame")
	flags.DurationVar(&cfg.AbsentEvery, "absent-every", 0, "everyone leaves once per this period")
	flags.DurationVar(&cfg.AbsentFor, "absent-for", 0, "how long everyone stays away")
	flags.Int64Var(&cfg.Seed, "seed", 0, "random seed, 0 for time based")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	log.Init(config.LogLevel(*level))

	enc, err := protocol.ParseEncoding(*encoding)
	if err != nil {
		return err
	}
	cfg.Encoding = enc

	srv, err := sim.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(*addr) }()
	log.Info("sensor simulator listening", "addr", *addr, "encoding", *encoding, "people", cfg.People)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	return srv.Shutdown()
}

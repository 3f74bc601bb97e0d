package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/metrics"
	"github.com/RogerSalama/TinyTelemetry/internal/sender"
	"github.com/RogerSalama/TinyTelemetry/internal/sensor"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("telemetry-sender %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	entries, err := sensor.LoadConfig(cfg.deviceConfigPath)
	if err != nil {
		l.Error("device_config_error", "error", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		l.Error("device_config_empty", "path", cfg.deviceConfigPath)
		os.Exit(1)
	}

	descriptors := make([]sensor.Descriptor, 0, len(entries))
	var liveSource *sensor.LiveSerialSource
	if cfg.serialDev != "" {
		liveSource, err = sensor.NewLiveSerialSource(cfg.serialDev, cfg.serialBaud, cfg.serialReadTO)
		if err != nil {
			l.Error("serial_open_error", "error", err)
			os.Exit(1)
		}
		defer liveSource.Close()
	}
	for _, e := range entries {
		desc, err := sensor.BuildDescriptor(entries, e.DeviceID)
		if err != nil {
			l.Error("device_descriptor_error", "device_id", e.DeviceID, "error", err)
			os.Exit(1)
		}
		if liveSource != nil {
			// A configured live serial device overrides every descriptor's
			// data source, per --serial's single-sensor deployment model.
			desc.Source = liveSource
		}
		descriptors = append(descriptors, desc)
	}

	conn, err := net.ListenPacket("udp", cfg.listenAddr)
	if err != nil {
		l.Error("listen_error", "error", err)
		os.Exit(1)
	}
	collectorAddr, err := net.ResolveUDPAddr("udp", cfg.collectorAddr)
	if err != nil {
		l.Error("resolve_collector_addr_error", "error", err)
		os.Exit(1)
	}

	schedules := make([]sender.Schedule, 0, len(cfg.intervalsSeconds))
	for _, s := range cfg.intervalsSeconds {
		schedules = append(schedules, sender.Schedule{
			Interval: time.Duration(s * float64(time.Second)),
			Duration: cfg.phaseDuration,
		})
	}

	snd, err := sender.NewSender(descriptors,
		sender.WithConn(conn),
		sender.WithCollectorAddr(collectorAddr),
		sender.WithSchedules(schedules),
		sender.WithHeartbeatInterval(cfg.heartbeatEvery),
		sender.WithHistoryCapacity(cfg.historyCap),
		sender.WithLogger(l),
	)
	if err != nil {
		l.Error("sender_init_error", "error", err)
		os.Exit(1)
	}
	if err := snd.Init(); err != nil {
		l.Error("sender_send_init_error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- snd.Run(ctx) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	case err := <-runErrCh:
		if err != nil {
			l.Error("sender_run_error", "error", err)
		}
	}
	snd.Shutdown()
	wg.Wait()
}

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/RogerSalama/TinyTelemetry/internal/collector"
	"github.com/RogerSalama/TinyTelemetry/internal/metrics"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("telemetry-collector %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	c, err := collector.NewCollector(
		collector.WithListenAddr(cfg.listenAddr),
		collector.WithJournalPath(cfg.journalPath),
		collector.WithReorderJournalPath(cfg.reorderPath),
		collector.WithMetricsPath(cfg.metricsCSVPath),
		collector.WithNackOptions(collector.WithNackDelay(cfg.nackDelay)),
		collector.WithRotateThreshold(cfg.rotateThresholdB),
		collector.WithRotateCheckInterval(cfg.rotateEvery),
		collector.WithCollectorLogger(l),
	)
	if err != nil {
		l.Error("collector_init_error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- c.Serve(ctx) }()

	go func() {
		portNum := portFromAddr(c.Addr().String())
		cleanup, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		if cfg.mdnsEnable {
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		}
		go func() { <-ctx.Done(); cleanup() }()
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		if err := <-runErrCh; err != nil {
			l.Error("collector_shutdown_error", "error", err)
		}
	case err := <-runErrCh:
		if err != nil {
			l.Error("collector_serve_error", "error", err)
		}
	}
	wg.Wait()
}

func portFromAddr(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, perr := strconv.Atoi(p); perr == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, perr := strconv.Atoi(addr[i+1:]); perr == nil {
			return pn
		}
	}
	return 0
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	deviceConfigPath string
	collectorAddr    string
	listenAddr       string
	intervalsSeconds []float64
	phaseDuration    time.Duration
	heartbeatEvery   time.Duration
	historyCap       int
	logFormat        string
	logLevel         string
	metricsAddr      string
	logMetricsEvery  time.Duration
	serialDev        string
	serialBaud       int
	serialReadTO     time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	deviceConfig := flag.String("device-config", "devices.conf", "Device configuration file (device_id, unit_name, data_file_path)")
	collectorAddr := flag.String("collector-addr", "127.0.0.1:12001", "Collector UDP address")
	listenAddr := flag.String("listen", ":0", "Local UDP address to bind for sending/receiving NACKs")
	intervals := flag.String("intervals", "1", "Comma-separated list of pacing intervals in seconds")
	phaseDuration := flag.Duration("phase-duration", 60*time.Second, "Duration to run each pacing interval for")
	heartbeatEvery := flag.Duration("heartbeat-interval", 10*time.Second, "Heartbeat period")
	historyCap := flag.Int("history-capacity", 0, "Retransmission history LRU capacity (0 = default)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9101); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	serialDev := flag.String("serial", "", "Optional live serial device path; when set, overrides device-config data files with live readings")
	serialBaud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.deviceConfigPath = *deviceConfig
	cfg.collectorAddr = *collectorAddr
	cfg.listenAddr = *listenAddr
	cfg.phaseDuration = *phaseDuration
	cfg.heartbeatEvery = *heartbeatEvery
	cfg.historyCap = *historyCap
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.serialDev = *serialDev
	cfg.serialBaud = *serialBaud
	cfg.serialReadTO = *serialReadTO

	parsed, err := parseIntervals(*intervals)
	if err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	cfg.intervalsSeconds = parsed

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func parseIntervals(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid interval %q", p)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("intervals must list at least one positive value")
	}
	return out, nil
}

// validate performs basic semantic validation of the parsed configuration.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.phaseDuration <= 0 {
		return fmt.Errorf("phase-duration must be > 0")
	}
	if c.heartbeatEvery <= 0 {
		return fmt.Errorf("heartbeat-interval must be > 0")
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.serialDev != "" && c.serialBaud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.serialBaud)
	}
	return nil
}

// applyEnvOverrides maps TELEMETRY_SENDER_* environment variables to config
// fields unless a corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["device-config"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_DEVICE_CONFIG"); ok && v != "" {
			c.deviceConfigPath = v
		}
	}
	if _, ok := set["collector-addr"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_COLLECTOR_ADDR"); ok && v != "" {
			c.collectorAddr = v
		}
	}
	if _, ok := set["intervals"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_INTERVALS"); ok && v != "" {
			parsed, err := parseIntervals(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TELEMETRY_SENDER_INTERVALS: %w", err)
			} else if err == nil {
				c.intervalsSeconds = parsed
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("TELEMETRY_SENDER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TELEMETRY_SENDER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}

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
	listenAddr       string
	journalPath      string
	reorderPath      string
	metricsCSVPath   string
	nackDelay        time.Duration
	logFormat        string
	logLevel         string
	metricsAddr      string
	logMetricsEvery  time.Duration
	mdnsEnable       bool
	mdnsName         string
	rotateThresholdB int64
	rotateEvery      time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listenAddr := flag.String("listen", ":12001", "UDP address to listen on")
	journalPath := flag.String("journal-path", "journal.csv", "Per-reading journal CSV path")
	reorderPath := flag.String("reorder-journal-path", "journal_reordered.csv", "Reordered-arrival journal CSV path")
	metricsCSVPath := flag.String("metrics-path", "metrics.csv", "Aggregate run metrics CSV path")
	nackDelay := flag.Duration("nack-delay", 100*time.Millisecond, "Delay before sending a scheduled NACK")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9102); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	mdnsEnable := flag.Bool("mdns-enable", false, "Advertise this collector via mDNS")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default: telemetry-collector-<hostname>)")
	rotateThresholdMB := flag.Int64("journal-rotate-threshold-mb", 64, "Journal file size (MiB) that triggers archival rotation")
	rotateEvery := flag.Duration("journal-rotate-interval", 5*time.Minute, "How often to check journal files for rotation (0 disables)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listenAddr
	cfg.journalPath = *journalPath
	cfg.reorderPath = *reorderPath
	cfg.metricsCSVPath = *metricsCSVPath
	cfg.nackDelay = *nackDelay
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.rotateThresholdB = *rotateThresholdMB << 20
	cfg.rotateEvery = *rotateEvery

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
	if c.nackDelay <= 0 {
		return fmt.Errorf("nack-delay must be > 0")
	}
	if c.rotateThresholdB <= 0 {
		return fmt.Errorf("journal-rotate-threshold-mb must be > 0")
	}
	if c.rotateEvery < 0 {
		return fmt.Errorf("journal-rotate-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps TELEMETRY_COLLECTOR_* environment variables to
// config fields unless a corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["journal-path"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_JOURNAL_PATH"); ok && v != "" {
			c.journalPath = v
		}
	}
	if _, ok := set["reorder-journal-path"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_REORDER_JOURNAL_PATH"); ok && v != "" {
			c.reorderPath = v
		}
	}
	if _, ok := set["metrics-path"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_METRICS_PATH"); ok && v != "" {
			c.metricsCSVPath = v
		}
	}
	if _, ok := set["nack-delay"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_NACK_DELAY"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.nackDelay = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TELEMETRY_COLLECTOR_NACK_DELAY: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TELEMETRY_COLLECTOR_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_MDNS_ENABLE"); ok && v != "" {
			c.mdnsEnable = v == "1" || strings.EqualFold(v, "true")
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["journal-rotate-threshold-mb"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_ROTATE_THRESHOLD_MB"); ok && v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				c.rotateThresholdB = n << 20
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TELEMETRY_COLLECTOR_ROTATE_THRESHOLD_MB: %w", err)
			}
		}
	}
	if _, ok := set["journal-rotate-interval"]; !ok {
		if v, ok := get("TELEMETRY_COLLECTOR_ROTATE_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.rotateEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TELEMETRY_COLLECTOR_ROTATE_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}

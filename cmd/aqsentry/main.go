// cmd/aqsentry/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"log/slog"

	"aqsentry/internal/app"
	"aqsentry/internal/config"
)

func main() {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var (
		configPath = flag.String("config", "", "path to the TOML config file (default aqsentry.toml)")
		sensorID   = flag.String("sensor-id", "", "primary sensor id, overrides config")
		backups    = flag.String("backup-sensor-ids", "", "comma-separated backup sensor ids, overrides config")
		threshold  = flag.Float64("threshold", 0, "alerting AQI threshold, overrides config")
		listen     = flag.String("listen", "", "HTTP listen address, overrides config")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *sensorID != "" {
		cfg.SensorID = strings.TrimSpace(*sensorID)
	}
	if *backups != "" {
		cfg.BackupSensorIDs = splitFlagList(*backups)
	}
	if *threshold > 0 {
		cfg.Threshold = *threshold
	}
	if *listen != "" {
		cfg.ListenAddress = strings.TrimSpace(*listen)
	}

	application, err := app.New(cfg)
	if err != nil {
		bootstrap.Error("app_init_failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			bootstrap.Error("app_close_failed", slog.Any("err", cerr))
		}
	}()

	logger := application.Logger()
	logger.Info("service_boot",
		slog.String("config_path", cfg.ConfigPath),
		slog.String("sensor_id", cfg.SensorID),
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("log_path", cfg.LogFilePath),
		slog.String("store_path", cfg.StorePath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error("service_terminated", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("service_stopped")
}

func splitFlagList(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

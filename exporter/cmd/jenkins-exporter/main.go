package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/obsidianstack/jenkins-exporter/exporter/internal/collector"
	"github.com/obsidianstack/jenkins-exporter/exporter/internal/config"
	"github.com/obsidianstack/jenkins-exporter/exporter/internal/jenkins"
	"github.com/obsidianstack/jenkins-exporter/exporter/internal/logging"
	"github.com/obsidianstack/jenkins-exporter/exporter/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional path to a YAML config file; environment variables override it")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(logging.New(os.Stdout, level))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	lvl, _ := logging.ParseLevel(cfg.Exporter.LogLevel) // validated by Load
	level.Set(lvl)

	slog.Info("Exporter is starting up",
		"jenkins_url", cfg.Jenkins.URL,
		"auth", cfg.Jenkins.Username != "",
		"metrics_prefix", cfg.Exporter.MetricsPrefix,
		"port", cfg.Exporter.Port,
		"log_level", lvl.String(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Only the log level is hot-reloaded; everything else needs a restart.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				if l, err := logging.ParseLevel(updated.Exporter.LogLevel); err == nil && l != level.Level() {
					level.Set(l)
					slog.Info("log level changed", "log_level", l.String())
				}
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	api := jenkins.New(cfg.Jenkins)
	exp := collector.NewExporter(collector.New(api, cfg.Exporter.MetricsPrefix))

	reg, err := server.NewRegistry(exp)
	if err != nil {
		slog.Error("failed to build registry", "err", err)
		os.Exit(1)
	}

	srv := server.New(cfg.Exporter.Addr(), server.Handler(reg, cfg.Exporter.MetricsPath))
	if err := srv.Run(ctx); err != nil {
		slog.Error("metrics server stopped", "err", err)
		os.Exit(1)
	}

	slog.Info("Exporter has shutdown")
}

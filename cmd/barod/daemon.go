package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/afroash/baro-monitor/internal/config"
	"github.com/afroash/baro-monitor/internal/export"
	"github.com/afroash/baro-monitor/internal/feed"
	"github.com/afroash/baro-monitor/internal/logging"
	"github.com/afroash/baro-monitor/internal/notify"
	"github.com/afroash/baro-monitor/internal/report"
	"github.com/afroash/baro-monitor/internal/supervisor"
	"github.com/afroash/baro-monitor/internal/worker"
)

// dumpPayload is the JSON document shipped to the export sink, one per
// sensor per supervisory cycle.
type dumpPayload struct {
	Sensor  int      `json:"sensor"`
	At      int64    `json:"at"`
	Entries []string `json:"entries"`
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logging.Level, cfg.Logging.FilePath, cfg.Logging.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	store := config.NewStore(*cfg)
	snap := store.Snapshot()
	logger.Info().Str("config", snap.String()).Msg("starting barod")

	notifier := notify.NewSlackClient(notify.Config{
		URL:      snap.Notify.URL,
		Channel:  snap.Notify.Channel,
		TokenEnv: snap.Notify.TokenEnv,
		Timeout:  snap.Notify.Timeout,
	}, logger)

	var exporter *export.Exporter
	if snap.Export.Enabled {
		exporter = export.New(snap.Export.Addr, snap.Export.Timeout, logger)
	}

	var (
		repStore *report.Store
		writer   *report.Writer
		cleaner  *report.Cleaner
	)
	if snap.Database.Enabled {
		repStore, err = report.NewStore(snap.Database.Path, logger)
		if err != nil {
			return err
		}
		defer repStore.Close()

		writer = report.NewWriter(repStore, report.WriterConfig{
			BatchSize:   snap.Database.BatchSize,
			FlushPeriod: snap.Database.FlushPeriod,
			ChannelSize: snap.Database.ChannelSize,
		}, logger)
		defer writer.Stop()

		cleaner = report.NewCleaner(repStore, report.CleanerConfig{
			RetentionDays: snap.Database.RetentionDays,
			CleanupPeriod: snap.Database.CleanupPeriod,
		}, logger)
		defer cleaner.Stop()
	}

	var feedSrv *feed.Server
	var pub worker.Publisher
	if snap.Feed.Enabled {
		feedSrv = feed.NewServer(snap.Feed, nil, func() map[string]any {
			stats := map[string]any{}
			if writer != nil {
				stats["writer"] = writer.Stats()
			}
			if cleaner != nil {
				stats["retention"] = cleaner.Stats()
			}
			return stats
		}, logger)
		pub = feedSrv
	}

	sup := supervisor.New(snap, notifier, pub, logger)

	if feedSrv != nil {
		feedSrv.SetCommander(sup)
		go func() {
			if err := feedSrv.Start(); err != nil {
				logger.Error().Err(err).Msg("feed server failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	defer sup.Stop()

	dumpTicker := time.NewTicker(snap.Daemon.DumpInterval)
	defer dumpTicker.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-dumpTicker.C:
			runDumpCycle(sup, snap, writer, exporter, feedSrv, logger)
		case sig := <-sigs:
			// Exit without a final drain; whatever the workers buffered
			// stays behind.
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			if feedSrv != nil {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				feedSrv.Shutdown(shutdownCtx)
				stop()
			}
			return nil
		}
	}
}

// runDumpCycle commands every worker to dump its history and relays the
// drained lines to each enabled sink. A sink failure costs that sink
// one cycle, nothing more.
func runDumpCycle(sup *supervisor.Supervisor, cfg config.Config, writer *report.Writer, exporter *export.Exporter, feedSrv *feed.Server, logger zerolog.Logger) {
	// Workers drain commands once per tick, so give them a full tick
	// plus slack before collecting.
	dumps := sup.DumpAll(cfg.Daemon.TickInterval + 250*time.Millisecond)
	now := time.Now()

	for id, lines := range dumps {
		logger.Debug().Int("sensor", id).Int("lines", len(lines)).Msg("relaying dump")

		if writer != nil {
			for _, line := range lines {
				writer.Write(report.Line{SensorID: id, Text: line, ReceivedAt: now})
			}
		}
		if exporter != nil {
			payload, err := json.Marshal(dumpPayload{Sensor: id, At: now.Unix(), Entries: lines})
			if err == nil {
				exporter.Export(string(payload))
			}
		}
		if feedSrv != nil {
			feedSrv.PublishDump(id, lines)
		}
	}
}

// applyFlagOverrides folds the CLI flags into the loaded configuration.
// Flags win over both the file and the environment.
func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	if disable1 {
		disableSensor(cfg, 1)
	}
	if disable2 {
		disableSensor(cfg, 2)
	}
	if disable3 {
		disableSensor(cfg, 3)
	}
	if debugFlag {
		cfg.Logging.Debug = true
	}
	if cmd.Flags().Changed("level") {
		cfg.Logging.Level = levelFlag
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Logging.FilePath = logFileFlag
	}
}

func disableSensor(cfg *config.Config, id int) {
	for i := range cfg.Sensors {
		if cfg.Sensors[i].ID == id {
			cfg.Sensors[i].Disabled = true
		}
	}
}

// Command relayd watches a list of directories and relays
// the file events to a sink (log, store, Kafka, Redis or QuestDB).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/internal"
	"github.com/FerroO2000/relay/internal/telemetry"
	"github.com/FerroO2000/relay/source"
	"github.com/FerroO2000/relay/store"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	sinkFlag   string
	watchFlag  []string
)

var rootCmd = &cobra.Command{
	Use:   "relayd",
	Short: "Relay file events to a sink",
	Long: `relayd watches a list of directories and delivers every file event,
in order, to the configured sink: log, store, kafka, redis or questdb.

The configuration file can be written in JSON, YAML or TOML,
the format is chosen by the file extension.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadCommandConfig()
		if err != nil {
			return err
		}

		ctx, cancelCtx := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancelCtx()

		return run(ctx, cfg)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Long: `check decodes the configuration file and reports every invalid value
together with the default that would replace it.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, anomalies, err := loadDaemonConfig(configPath)
		if err != nil {
			return err
		}

		if anomalies > 0 {
			return fmt.Errorf("configuration has %d anomalies", anomalies)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path of the configuration file (json, yaml or toml)")
	rootCmd.Flags().StringVar(&sinkFlag, "sink", "", "override the sink of the configuration file")
	rootCmd.Flags().StringSliceVarP(&watchFlag, "watch", "w", nil, "override the watched directories")

	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadCommandConfig loads the configuration file and applies the flags.
func loadCommandConfig() (*daemonConfig, error) {
	cfg, _, err := loadDaemonConfig(configPath)
	if err != nil {
		return nil, err
	}

	if sinkFlag != "" {
		cfg.Sink = sinkFlag
	}

	if len(watchFlag) > 0 {
		cfg.Source.WatchedDirs = watchFlag
	}

	return cfg, nil
}

// initTelemetry sets up the OpenTelemetry providers and routes the logs
// to the collector. It returns the shutdown function of the providers.
func initTelemetry(ctx context.Context, cfg *telemetry.Config, tel *internal.Telemetry) func() {
	providers, err := telemetry.Init(ctx, cfg)
	if err != nil {
		if errors.Is(err, telemetry.ErrCollectorUnreachable) {
			tel.LogWarn("collector not reachable, telemetry disabled", "endpoint", cfg.Endpoint)
		} else {
			tel.LogError("failed to init telemetry", err)
		}

		return func() {}
	}

	internal.SetLogger(otelslog.NewLogger(cfg.ServiceName))

	return func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := providers.Shutdown(shutdownCtx); err != nil {
			tel.LogError("failed to shutdown telemetry", err)
		}
	}
}

func run(ctx context.Context, cfg *daemonConfig) error {
	tel := internal.NewTelemetry("cmd", "relayd")

	shutdownTelemetry := initTelemetry(ctx, &cfg.Telemetry, tel)
	defer shutdownTelemetry()

	s, err := store.New(&cfg.Store)
	if err != nil {
		return err
	}

	sink, err := newSink(cfg, s)
	if err != nil {
		return err
	}

	handle, join, err := relay.New(ctx, sink, &cfg.Relay)
	if err != nil {
		return err
	}

	dir, err := source.NewDir(handle, &cfg.Source)
	if err != nil {
		handle.Release()
		return errors.Join(err, join.Wait())
	}

	// The source is the only producer
	handle.Release()

	// Stop watching when the relay closes on its own (handler failure)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	go func() {
		select {
		case <-join.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	tel.LogInfo("running", "sink", cfg.Sink, "watched_dirs", cfg.Source.WatchedDirs, "relay", cfg.Relay.String())

	runErr := dir.Run(runCtx)
	if errors.Is(runErr, relay.ErrChannelClosed) {
		runErr = nil
	}

	tel.LogInfo("stopping", "pending_items", join.Pending())

	if err := join.Wait(); err != nil {
		return fmt.Errorf("relay failed: %w", err)
	}

	if cfg.Sink == sinkStore {
		tel.LogInfo("store contents", "items", s.Len(), "evicted_items", s.Evicted())
	}

	return runErr
}

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slideremote/relay/internal/config"
	"github.com/slideremote/relay/internal/logger"
	"github.com/slideremote/relay/pkg/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay hub",
	Long: `Run the always-on relay hub. Agents connect on /ws/agent and receive a
session code; controllers connect on /ws/controller and join by code.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Close()

	srv, err := relay.NewServer(relay.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		SharedSecret:  cfg.Server.SharedSecret,
		SessionTTL:    cfg.Session.TTL(),
		SweepInterval: cfg.Session.SweepInterval(),
		Version:       version,
		Metrics:       cfg.Server.Metrics,
		Logger:        log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start relay server: %w", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	return srv.Stop()
}

func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.NewValidator().ValidateConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, log, nil
}

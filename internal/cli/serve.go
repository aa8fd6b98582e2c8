package cli

import (
	"fmt"

	"github.com/harun/shopagent/internal/config"
	"github.com/harun/shopagent/internal/daemon"
	"github.com/harun/shopagent/internal/logger"
	"github.com/spf13/cobra"
)

var (
	serveWatch  bool
	servePretty bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shopagent API server",
	Long: `Run the shopagent API server in the foreground until SIGINT or SIGTERM.
In-flight turns are drained before the process exits.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload the log level when the config file changes")
	serveCmd.Flags().BoolVar(&servePretty, "pretty", false, "human readable console logs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("shopagent is already running (PID file: %s)", pidFile)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty || servePretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.WithVersion(version))
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		_ = d.Stop()
		return err
	}

	if serveWatch {
		if err := loader.Watch(d.ApplyConfig); err != nil {
			zl := log.Zerolog()
			zl.Debug().Err(err).Msg("Config watch disabled")
		}
	}

	d.Wait()
	return nil
}

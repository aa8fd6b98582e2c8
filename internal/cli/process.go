package cli

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/harun/shopagent/internal/config"
	"github.com/harun/shopagent/internal/daemon"
)

// getPIDFilePath resolves the PID file from the configured data directory
func getPIDFilePath() string {
	cfg, err := config.Load(cfgFile)
	if err == nil && cfg.DataDir != "" {
		return daemon.PIDFilePath(cfg.DataDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), daemon.PIDFileName)
	}
	return daemon.PIDFilePath(filepath.Join(home, ".shopagent"))
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 probes without delivering anything
	return process.Signal(syscall.Signal(0)) == nil
}

func signalDaemon(pidFile string, sig syscall.Signal) error {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(sig)
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/harun/shopagent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cfgFile = ""
		cmd.SetArgs(nil)
		for _, name := range []string{"version", "help"} {
			if f := cmd.Flags().Lookup(name); f != nil {
				_ = f.Value.Set("false")
				f.Changed = false
			}
		}
	})

	err := cmd.Execute()
	return output.String(), err
}

func writeConfig(t *testing.T, mutate func(map[string]interface{})) string {
	t.Helper()

	dir := t.TempDir()
	raw := map[string]interface{}{
		"data_dir": dir,
		"commerce": map[string]interface{}{"endpoint": "https://shop.example.com/mcp"},
		"llm": map[string]interface{}{
			"profiles": []map[string]interface{}{
				{"id": "primary", "provider": "openai", "api_key": "sk-live-secret", "priority": 1},
			},
		},
		"server": map[string]interface{}{"shared_secret": "hunter2"},
	}
	if mutate != nil {
		mutate(raw)
	}

	path := filepath.Join(dir, "shopagent.json")
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "shopagent version")
		assert.Contains(t, out, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		out, err := execute(t, "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "shopping assistant")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()
		require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})

	t.Run("subcommands", func(t *testing.T) {
		names := make(map[string]bool)
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "stop", "status", "config", "version"} {
			assert.True(t, names[want], want)
		}
	})
}

func TestGetVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(GetVersion(), "0."))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "shopagent "+GetVersion()))

	_, err = execute(t, "version", "extra")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out, err := execute(t, "--config", writeConfig(t, nil), "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "configuration is valid")
	})

	t.Run("invalid", func(t *testing.T) {
		path := writeConfig(t, func(raw map[string]interface{}) {
			raw["commerce"] = map[string]interface{}{"endpoint": "not a url"}
			raw["session"] = map[string]interface{}{"driver": "mongo"}
		})
		_, err := execute(t, "--config", path, "config", "validate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commerce.endpoint")
		assert.Contains(t, err.Error(), "invalid session driver")
	})
}

func TestConfigShowMasksSecrets(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t, nil), "config", "show")
	require.NoError(t, err)

	assert.NotContains(t, out, "sk-live-secret")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
	assert.Contains(t, out, "https://shop.example.com/mcp")
}

func TestMaskDoesNotMutateInput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Profiles = []config.LLMProfile{{ID: "p", APIKey: "sk-1"}}

	masked := maskSecrets(*cfg)
	assert.Equal(t, "********", masked.LLM.Profiles[0].APIKey)
	assert.Equal(t, "sk-1", cfg.LLM.Profiles[0].APIKey)
}

func TestStatusAndStopWhenStopped(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := execute(t, "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: stopped")

	_, err = execute(t, "--config", path, "stop")
	assert.ErrorContains(t, err, "not running")
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "shopagent.pid")

	assert.False(t, isRunning(pidFile))

	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0o644))
	assert.False(t, isRunning(pidFile))

	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644))
	assert.True(t, isRunning(pidFile))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "45s", want: "45s"},
		{in: "3m5s", want: "3m5s"},
		{in: "2h0m7s", want: "2h0m7s"},
	}
	for _, tt := range tests {
		d, err := time.ParseDuration(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, formatDuration(d))
	}
}

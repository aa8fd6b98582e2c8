package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harun/shopagent/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and report every problem",
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configValidateCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(maskSecrets(*cfg), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func maskSecrets(cfg config.Config) config.Config {
	profiles := make([]config.LLMProfile, len(cfg.LLM.Profiles))
	for i, p := range cfg.LLM.Profiles {
		p.APIKey = mask(p.APIKey)
		profiles[i] = p
	}
	cfg.LLM.Profiles = profiles
	cfg.Commerce.OAuth.ClientSecret = mask(cfg.Commerce.OAuth.ClientSecret)
	cfg.Session.Redis.Password = mask(cfg.Session.Redis.Password)
	cfg.Server.SharedSecret = mask(cfg.Server.SharedSecret)
	return cfg
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

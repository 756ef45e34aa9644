package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/afkcode/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or check afkcode configuration",
	Long: `View or check afkcode configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path and search locations",
	RunE:  runConfigPath,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration, prompt files and tool executables",
	RunE:  runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCheckCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		_, _ = fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	return writeYAML(out, cfg)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		_, _ = fmt.Fprintln(out, "Active config: (none)")
	}

	_, _ = fmt.Fprintln(out, "\nSearch paths:")
	for i, dir := range config.SearchPaths() {
		_, _ = fmt.Fprintf(out, "  %d. %s/%s.{toml,yaml}\n", i+1, dir, config.ConfigName)
	}
	_, _ = fmt.Fprintln(out, "\nEnvironment variables: AFKCODE_* (e.g., AFKCODE_PARALLEL_INSTANCES)")
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateDeep(viper.ConfigFileUsed()); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
	return nil
}

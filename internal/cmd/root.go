package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/afkcode/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "afkcode",
	Short: "Run LLM coding tools against a checklist until the work is done",
	Long: `afkcode feeds prompts to LLM command-line tools (gemini, codex, claude)
in a loop, working through the items of an AGENTS.md checklist.

Several workers can run in parallel, each leasing its own checklist
items. Tools that report rate limits are skipped in favour of the next
configured tool until their timeout expires.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./afkcode.toml or $HOME/.config/afkcode/afkcode.toml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(config.ConfigName)
		for _, dir := range config.SearchPaths() {
			viper.AddConfigPath(dir)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AFKCODE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., AFKCODE_PARALLEL_INSTANCES for parallel.instances
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Command fanlog pipes log lines through the sinks declared in a fanlog configuration
// file, so shell scripts and cron jobs can share the rotation, retention and remote
// targets of the services they run beside.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wayneeseguin/fanlog/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "fanlog",
	Short: "Fan log lines out to files, syslog, NATS and Beats",
	Long: `fanlog reads log lines from its arguments or stdin and delivers them to every
sink declared in a YAML or TOML configuration file.

Without --config a single stderr sink is used, with its level and format taken
from FANLOG_LEVEL and FANLOG_FORMAT.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Sink configuration file (.yaml, .yml or .toml)")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	viper.SetEnvPrefix("FANLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig returns the configured file, or a single stderr sink when none is given.
func loadConfig() (*config.File, error) {
	if path := viper.GetString("config"); path != "" {
		return config.Load(path)
	}
	f := config.DefaultConfig()
	if level := viper.GetString("level"); level != "" {
		f.Sinks[0].Level = level
	}
	f.Sinks[0].Format = viper.GetString("format")
	return f, nil
}

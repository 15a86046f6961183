// Package cmd holds the parfor command tree.
package cmd

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "PARFOR"

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "parfor",
	Short: "work-stealing parallel-for scheduler",
	Long: `
Drive the parallel-for scheduler with synthetic workloads.

Every flag can also be set through a PARFOR_ environment variable
(dashes become underscores, e.g. PARFOR_ACTIVE_CORES) or a config file.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the command tree with ctx as the base context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// initConfig layers the config file and environment under the flags of cmd.
func initConfig(cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading config %s", cfgFile)
		}
	}
	return errors.Wrap(v.BindPFlags(cmd.Flags()), "binding flags")
}

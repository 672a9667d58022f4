package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "terria-catalog",
	Short: "Load, inspect and serve map catalog items",
	Long: `terria-catalog reads catalog files (JSON, TOML or YAML) describing map data
sources, loads their metadata and map items, and serves them over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .terria.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("cache", "", "path of the SQLite fetch cache")
	rootCmd.PersistentFlags().String("proxy", "", "base URL of the CORS proxy")

	_ = viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("cache.path", rootCmd.PersistentFlags().Lookup("cache"))
	_ = viper.BindPFlag("proxy.base_url", rootCmd.PersistentFlags().Lookup("proxy"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".terria")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	config.BindEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

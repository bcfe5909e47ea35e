// Package cmd wires configuration, logging and the server commands.
package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chat-server/config"
)

var rootCmd = &cobra.Command{
	Use:           "chat-server",
	Short:         "Chat backend with real-time calls and messaging",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.BindEnv(viper.GetViper())
		initLog(viper.GetString("log_level"))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("chat-server failed")
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	return config.Load(viper.GetViper())
}

func initLog(level string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func init() {
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("db-driver", "mysql", "Database driver (mysql or sqlite)")
	_ = viper.BindPFlag("db_driver", rootCmd.PersistentFlags().Lookup("db-driver"))

	rootCmd.PersistentFlags().String("db-dsn", "", "Database DSN")
	_ = viper.BindPFlag("db_dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
}

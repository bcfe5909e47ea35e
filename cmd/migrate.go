package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chat-server/config"
	"chat-server/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := config.InitDB(cfg)
		if err != nil {
			return err
		}
		if err := models.Migrate(db); err != nil {
			return err
		}
		log.Info("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

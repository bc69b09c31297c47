package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/galerly/galerly/config"
	"github.com/galerly/galerly/database"
)

// migrateCmd runs the schema migrations and exits. Useful for
// pre-deploy checks and for databases the serve process may not alter.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations",
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		cfg := config.Get()

		factory, err := database.NewFactory(cfg)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		defer func() { _ = factory.Close() }()

		log.Printf("Schema migrated successfully (%s)", factory.GetProvider().Name())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/eaglebank/wallet/shared/config"
	"github.com/eaglebank/wallet/shared/database"
	"github.com/eaglebank/wallet/shared/logging"
	"github.com/eaglebank/wallet/transaction-service/internal/cli"
	"github.com/eaglebank/wallet/transaction-service/internal/client"
	"github.com/eaglebank/wallet/transaction-service/migrations"
	"github.com/pterm/pterm"
)

func main() {
	logger := logging.Must("sagactl", "development", "warn")
	defer logger.Sync()

	root := cli.NewRootCmd(cli.Deps{
		Admin: func(server string, timeout time.Duration) cli.SagaAdmin {
			return client.NewAdminClient(server, timeout, logger)
		},
		Migrate: func(ctx context.Context) error {
			cfg, err := config.LoadTransactionService()
			if err != nil {
				return err
			}
			db, err := database.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(db, migrations.FS, ".")
		},
	})

	if err := root.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

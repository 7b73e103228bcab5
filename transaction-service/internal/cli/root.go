// Package cli implements sagactl, the operator tool for transfer sagas.
package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/eaglebank/wallet/shared/models"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// SagaAdmin is the transaction service's operator API.
type SagaAdmin interface {
	ListSagas(ctx context.Context, state string, limit int) ([]models.SagaView, error)
	RetrySaga(ctx context.Context, transferID string) (*models.SagaView, error)
}

type Deps struct {
	// Admin connects to the transaction service at server.
	Admin func(server string, timeout time.Duration) SagaAdmin
	// Migrate applies the transaction service's schema migrations.
	Migrate func(ctx context.Context) error
}

type rootFlags struct {
	Server  string
	Timeout time.Duration
}

func NewRootCmd(deps Deps) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "sagactl",
		Short:         "sagactl inspects and repairs transfer sagas",
		Long:          `sagactl lists unfinished transfer sagas, re-arms escalated ones and runs schema migrations.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.Server, "server", "s", "http://localhost:8084", "transaction service base URL")
	rootCmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 30*time.Second, "request timeout")

	admin := func() SagaAdmin { return deps.Admin(flags.Server, flags.Timeout) }
	rootCmd.AddCommand(NewListCmd(admin))
	rootCmd.AddCommand(NewRetryCmd(admin))
	rootCmd.AddCommand(NewMigrateCmd(deps.Migrate))

	return rootCmd
}

func sagaTable(sagas []models.SagaView) pterm.TableData {
	data := pterm.TableData{{"TRANSFER", "KIND", "STATE", "SENDER", "RECEIVER", "AMOUNT", "ATTEMPTS", "UPDATED", "LAST ERROR"}}
	for _, s := range sagas {
		data = append(data, []string{
			s.TransferID,
			s.Kind,
			s.State,
			s.SenderAccount,
			s.ReceiverAccount,
			s.Amount,
			strconv.Itoa(s.Attempts),
			s.UpdatedAt.Format(time.RFC3339),
			s.LastError,
		})
	}
	return data
}

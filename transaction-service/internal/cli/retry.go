package cli

import (
	"errors"
	"fmt"

	"github.com/eaglebank/wallet/shared/models"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func NewRetryCmd(admin func() SagaAdmin) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <transfer-id>...",
		Short: "Re-arm sagas for immediate recovery",
		Long: `Re-arm sagas so the recovery worker drives them again right away.
An escalated saga restarts compensation with a fresh attempt budget.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := admin()
			out := cmd.OutOrStdout()

			var errs []error
			var retried []models.SagaView
			for _, id := range args {
				saga, err := a.RetrySaga(cmd.Context(), id)
				if err != nil {
					pterm.Warning.WithWriter(out).Printfln("%s: %v", id, err)
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				retried = append(retried, *saga)
			}

			if len(retried) > 0 {
				if err := pterm.DefaultTable.WithHasHeader().WithData(sagaTable(retried)).WithWriter(out).Render(); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
}

package cli

import (
	"fmt"
	"io"

	"github.com/eaglebank/wallet/shared/models"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type listFlags struct {
	State string
	Limit int
}

type ListCommandRunner struct {
	admin SagaAdmin
	flags *listFlags
	out   io.Writer
}

func NewListCmd(admin func() SagaAdmin) *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unfinished sagas",
		Long: `List sagas that have not completed or failed yet.
Use --state escalated to see the sagas waiting for an operator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &ListCommandRunner{admin: admin(), flags: flags, out: cmd.OutOrStdout()}
			return runner.Run(cmd)
		},
	}

	cmd.Flags().StringVar(&flags.State, "state", "", "only list sagas in this state")
	cmd.Flags().IntVarP(&flags.Limit, "limit", "n", 50, "maximum number of sagas")

	return cmd
}

func (r *ListCommandRunner) Run(cmd *cobra.Command) error {
	if r.flags.State != "" && !knownState(r.flags.State) {
		return fmt.Errorf("unknown state %q", r.flags.State)
	}

	sagas, err := r.admin.ListSagas(cmd.Context(), r.flags.State, r.flags.Limit)
	if err != nil {
		return fmt.Errorf("failed to list sagas: %w", err)
	}
	if len(sagas) == 0 {
		pterm.Info.WithWriter(r.out).Println("no sagas found")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(sagaTable(sagas)).WithWriter(r.out).Render()
}

func knownState(state string) bool {
	switch models.SagaState(state) {
	case models.SagaPending, models.SagaDebitUnknown, models.SagaDebited, models.SagaCreditUnknown,
		models.SagaCredited, models.SagaCompensating, models.SagaCompensated, models.SagaEscalated:
		return true
	}
	return false
}

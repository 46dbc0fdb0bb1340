package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
	"github.com/xiaot623/gogo/negotiator/internal/tui"
)

var replayPlain bool

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Replay a recorded negotiation",
	Long: `Fetch a recorded session from the history API and play it back at the
configured pace (NEGOTIATOR_REPLAY_DELAY_MS between events).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if replayPlain {
			return runPlain(cmd, func(ctx context.Context, ctrl *controller.Controller) error {
				return ctrl.StartReplay(ctx, id)
			})
		}
		return runInteractive(cmd, tui.Start{ReplayID: id}, false)
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayPlain, "plain", false, "Print changes as plain lines instead of the interactive view")
}

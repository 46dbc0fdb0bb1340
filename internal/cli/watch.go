package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
	"github.com/xiaot623/gogo/negotiator/internal/render"
	"github.com/xiaot623/gogo/negotiator/internal/tui"
)

var (
	watchManual bool
	watchPlain  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a live negotiation",
	Long: `Connect to the negotiation stream and follow the session as it happens.

With --manual the service hands the human side's moves to you. The plain
output mode prints one line per change and cannot take moves.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := func(ctx context.Context, ctrl *controller.Controller) error {
			return ctrl.StartLive(ctx)
		}
		if watchPlain {
			if watchManual || cfg.ManualControl {
				return errors.New("manual control needs the interactive view, drop --plain")
			}
			return runPlain(cmd, start)
		}
		return runInteractive(cmd, tui.Start{Live: true}, watchManual)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchManual, "manual", false, "Take over the human side once connected")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print changes as plain lines instead of the interactive view")
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// runPlain starts one session with a line printer and returns once it ends or
// the process is interrupted.
func runPlain(cmd *cobra.Command, start func(context.Context, *controller.Controller) error) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	sink := newDoneSink(render.NewPlain(cmd.OutOrStdout(), render.NewPrinter(lang), render.DefaultMaxRounds))
	rt, err := newRuntime(ctx, sink, false, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := start(ctx, rt.ctrl); err != nil {
		return err
	}
	select {
	case <-sink.done:
	case <-ctx.Done():
		rt.logger.Info("Interrupted, stopping session")
	}
	return nil
}

func runInteractive(cmd *cobra.Command, start tui.Start, manual bool) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	feed := tui.NewFeed()
	rt, err := newRuntime(ctx, feed, manual, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	return tui.Run(ctx, rt.ctrl, feed, tui.Options{
		Printer:   render.NewPrinter(lang),
		MaxRounds: render.DefaultMaxRounds,
		Start:     start,
	})
}

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/negotiator/internal/directory"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded negotiations",
	Long:  `List the sessions recorded by the negotiation service, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := directory.NewClient(cfg.APIURL, cfg.HTTPTimeout())
		sessions, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if sessionsLimit > 0 && len(sessions) > sessionsLimit {
			sessions = sessions[:sessionsLimit]
		}
		return printSessions(cmd.OutOrStdout(), sessions)
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 0, "Show at most this many sessions (0 = all)")
}

func printSessions(out io.Writer, sessions []protocol.SessionSummary) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(out, "No recorded sessions.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRESULT\tROUNDS\tTIME")
	fmt.Fprintln(w, "--\t------\t------\t----")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Result, s.Rounds, formatTime(s.Timestamp.Time))
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

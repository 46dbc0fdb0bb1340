// Package cli wires configuration, logging and the session controller into
// the negotiator command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/negotiator/internal/config"
)

var (
	envFile   string
	logLevel  string
	logFile   string
	streamURL string
	apiURL    string
	lang      string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "negotiator",
	Short: "Watch and steer live supplier/retailer negotiations",
	Long: `negotiator follows a remote negotiation service over WebSocket.

Watch live sessions, take over one side of the negotiation, and replay
recorded sessions from the service's history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if flags.Changed("log-file") {
			loaded.LogFile = logFile
		}
		if flags.Changed("stream-url") {
			loaded.StreamURL = streamURL
		}
		if flags.Changed("api-url") {
			loaded.APIURL = apiURL
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "Optional dotenv file read before the environment")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
	flags.StringVar(&streamURL, "stream-url", "", "Negotiation stream endpoint (ws:// or wss://)")
	flags.StringVar(&apiURL, "api-url", "", "Base URL of the session history API")
	flags.StringVar(&lang, "lang", "en", "Language tag used to format prices")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(devserverCmd)
}

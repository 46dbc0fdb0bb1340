package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/negotiator/internal/devserver"
	"github.com/xiaot623/gogo/negotiator/internal/logging"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

const shutdownTimeout = 10 * time.Second

var (
	devPort      int
	devTurnDelay time.Duration
	devHuman     string
	devRounds    int
	devDB        string
	devPolicy    string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local negotiation service",
	Long: `Run a local stand-in for the negotiation service. It streams scripted
supplier/retailer negotiations on /ws/negotiate, yields the human side's moves
when manual control is on, and serves finished sessions on /api/sessions.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		human := protocol.Agent(devHuman)
		if !human.Valid() {
			return fmt.Errorf("invalid --human %q: want supplier or retailer", devHuman)
		}
		port := cfg.DevPort
		if cmd.Flags().Changed("port") {
			port = devPort
		}
		if cmd.Flags().Changed("db") {
			cfg.DevDB = devDB
		}
		if cmd.Flags().Changed("policy") {
			cfg.DevPolicy = devPolicy
		}

		logger, closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		history, closeHistory, err := openHistory(cfg.DevDB)
		if err != nil {
			return err
		}
		defer closeHistory()

		policy, err := loadPolicy(cmd.Context(), cfg.DevPolicy)
		if err != nil {
			return err
		}

		rules := devserver.DefaultRules()
		if devRounds > 0 {
			rules.MaxRounds = devRounds
		}
		srv := devserver.NewServer(devserver.Options{
			Rules:          rules,
			TurnDelay:      devTurnDelay,
			HumanAgent:     human,
			PingInterval:   cfg.PingInterval(),
			WriteTimeout:   cfg.WriteTimeout(),
			MaxMessageSize: cfg.MaxMessageSize,
			History:        history,
			Policy:         policy,
			Logger:         logger,
		})

		ctx, stop := signalContext(cmd)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			err := srv.Start(fmt.Sprintf(":%d", port))
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Shutting down dev server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	flags := devserverCmd.Flags()
	flags.IntVarP(&devPort, "port", "p", 8000, "Listen port (default NEGOTIATOR_DEV_PORT)")
	flags.DurationVar(&devTurnDelay, "turn-delay", devserver.DefaultTurnDelay, "Pause before each scripted move")
	flags.StringVar(&devHuman, "human", string(protocol.AgentRetailer), "Side the operator plays under manual control")
	flags.IntVar(&devRounds, "max-rounds", 0, "Round limit before the session times out (0 = default)")
	flags.StringVar(&devDB, "db", "", "SQLite file for session history (default NEGOTIATOR_DEV_DB, in memory when empty)")
	flags.StringVar(&devPolicy, "policy", "", "Rego module vetting operator moves (default NEGOTIATOR_DEV_POLICY, built-in when empty)")
}

func openHistory(path string) (devserver.History, func() error, error) {
	if path == "" {
		return devserver.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := devserver.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func loadPolicy(ctx context.Context, path string) (*devserver.MovePolicy, error) {
	module := devserver.DefaultMovePolicy
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy: %w", err)
		}
		module = string(data)
	}
	return devserver.NewMovePolicy(ctx, module)
}

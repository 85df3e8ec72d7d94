package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quotewire/internal/config"
	"quotewire/internal/logger"
	web "quotewire/internal/server"
)

var (
	log        *zap.Logger
	cfg        config.Config
	configPath string
	logLevel   string
	redisAddr  string
	badgerPath string
)

var rootCmd = &cobra.Command{
	Use:   "quotewire",
	Short: "quotewire - harvest quotes from news sites and serve them to displays",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if redisAddr != "" {
			cfg.Ledger.Backend = "redis"
			cfg.Ledger.RedisAddr = redisAddr
		}
		if badgerPath != "" {
			cfg.Store.BadgerPath = badgerPath
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log, err = logger.New(cfg.Log.Level, cfg.Log.Development)
		return err
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// open builds the app for one command. Commands return errors instead of
// exiting so that deferred Close calls flush the store.
func open(ctx context.Context) (*app, error) {
	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return a, nil
}


var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest, score, populate the display queue and clean duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := ingest(ctx, a); err != nil {
			return err
		}

		if pass, err := a.scoringPass(); err != nil {
			log.Warn("Skipping scoring", zap.Error(err))
		} else if res, err := pass.Run(ctx); err != nil {
			log.Error("Scoring failed", zap.Error(err))
		} else {
			log.Info("Scoring complete", zap.Int("scored", res.Scored), zap.Int("failed", res.Failed))
		}

		n, err := a.queue.Populate(ctx, cfg.Ingest.QuotesCollection, cfg.Queue.MinScore)
		if err != nil {
			log.Error("Populate failed", zap.Error(err))
		} else {
			log.Info("Queue populated", zap.Int("added", n))
		}

		if _, err := a.quotes.CleanRecentDuplicates(ctx, cfg.Ingest.CleanupWindow); err != nil {
			log.Error("Cleanup failed", zap.Error(err))
		}
		return nil
	},
}

var reprocess bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch new articles from every site and store their quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !reprocess {
			return ingest(ctx, a)
		}
		p, err := a.pipeline()
		if err != nil {
			return fmt.Errorf("invalid site configuration: %w", err)
		}
		if _, err := p.Reprocess(ctx); err != nil {
			return fmt.Errorf("reprocess: %w", err)
		}
		return nil
	},
}

// ingest runs the pipeline and prints the report.
func ingest(ctx context.Context, a *app) error {
	p, err := a.pipeline()
	if err != nil {
		return fmt.Errorf("invalid site configuration: %w", err)
	}
	report, err := p.Run(ctx)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
	}
	if err != nil {
		return fmt.Errorf("ingestion aborted: %w", err)
	}
	return nil
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score unprocessed quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := a.scoringPass()
		if err != nil {
			return err
		}
		res, err := pass.Run(ctx)
		if err != nil {
			return fmt.Errorf("scoring: %w", err)
		}
		log.Info("Scoring complete", zap.Int("scored", res.Scored), zap.Int("failed", res.Failed))
		return nil
	},
}

var cleanHours int

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete recently stored duplicate quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		window := cfg.Ingest.CleanupWindow
		if cleanHours > 0 {
			window = time.Duration(cleanHours) * time.Hour
		}
		n, err := a.quotes.CleanRecentDuplicates(ctx, window)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Printf("Deleted %d duplicate quotes\n", n)
		return nil
	},
}

var (
	populateCollection string
	populateMinScore   float64
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Add well scored quotes to the display queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		coll := populateCollection
		if coll == "" {
			coll = cfg.Ingest.QuotesCollection
		}
		minScore := cfg.Queue.MinScore
		if cmd.Flags().Changed("min-score") {
			minScore = populateMinScore
		}
		n, err := a.queue.Populate(ctx, coll, minScore)
		if err != nil {
			return fmt.Errorf("populate: %w", err)
		}
		fmt.Printf("Added %d quotes from %s\n", n, coll)
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or administer the display queue",
}

var queueResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every entry as not yet displayed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.queue.Reset(ctx)
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Printf("Reset %d entries\n", n)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry from the display queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.queue.Clear(ctx)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Printf("Deleted %d entries\n", n)
		return nil
	},
}

var statsList bool

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue size and how many entries are still to be shown",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.queue.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		fmt.Printf("Total: %d\nUndisplayed: %d\n", st.Total, st.Undisplayed)
		if !statsList {
			return nil
		}

		entries, err := a.queue.Entries(ctx)
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		for _, e := range entries {
			mark := " "
			if e.Displayed {
				mark = "x"
			}
			fmt.Printf("[%s] %4d  %s  %s\n", mark, e.Seq, e.Source, e.Text)
		}
		return nil
	},
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the device API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := web.NewServer(a.queue, nil, log)
		serveErr := make(chan error, 1)
		go func() {
			if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				cancel()
			}
		}()

		// Block until shutdown
		<-ctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn("Shutdown incomplete", zap.Error(err))
		}

		select {
		case err := <-serveErr:
			return fmt.Errorf("server stopped: %w", err)
		default:
		}
		log.Info("Goodbye!")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default $QUOTEWIRE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Keep the URL ledger in Redis at this address")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "", "Path to BadgerDB data directory")

	ingestCmd.Flags().BoolVar(&reprocess, "reprocess", false, "Re-extract quotes from saved articles instead of fetching")
	cleanCmd.Flags().IntVar(&cleanHours, "hours", 0, "Look-back window in hours (default from config)")
	populateCmd.Flags().StringVar(&populateCollection, "collection", "", "Source quotes collection (default from config)")
	populateCmd.Flags().Float64Var(&populateMinScore, "min-score", 0.67, "Minimum score to enqueue")
	queueStatsCmd.Flags().BoolVar(&statsList, "list", false, "Also list entries in serving order")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")

	queueCmd.AddCommand(queueResetCmd, queueClearCmd, queueStatsCmd)
	rootCmd.AddCommand(runCmd, ingestCmd, scoreCmd, cleanCmd, populateCmd, queueCmd, serveCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil && log != nil {
		log.Error("Command failed", zap.Error(err))
	}
	if log != nil {
		log.Sync()
	}
	if err != nil {
		if log == nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

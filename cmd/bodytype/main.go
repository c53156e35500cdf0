package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bodytype/artifact"
	"bodytype/config"
	"bodytype/db"
	bhttp "bodytype/http"
	"bodytype/logging"
	"bodytype/monitoring"
	"bodytype/pipeline"
	"bodytype/service"
	"bodytype/trainer"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "bodytype",
		Short:        "train and serve the body type classifier",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults and BODYTYPE_* env when empty)")

	root.AddCommand(
		trainCmd(&configPath),
		serveCmd(&configPath),
		runsCmd(&configPath),
		issuesCmd(&configPath),
		schemaCmd(&configPath),
		generateCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger every command shares.
func setup(configPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func trainCmd(configPath *string) *cobra.Command {
	var dataset, labels string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "fit a bundle from the dataset and publish it to the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if dataset != "" {
				cfg.Trainer.Dataset = dataset
			}
			if labels != "" {
				cfg.Trainer.LabelSource = labels
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			runs, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := artifact.NewStore(cfg.Store.Root)
			result, err := trainer.New(cfg.Trainer, store, runs, logger).Run(ctx)
			if err != nil {
				logger.Error("training failed", zap.Error(err))
				return err
			}
			return printJSON(cmd.OutOrStdout(), result.Report)
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "override trainer.dataset")
	cmd.Flags().StringVar(&labels, "labels", "", "override trainer.label_source (dataset or bmi)")
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve predictions from the current bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			metrics := monitoring.NewMetrics()
			store := artifact.NewStore(cfg.Store.Root)
			svc, err := service.Load(store, cfg.Expectation(), service.Options{
				CacheSize: cfg.Serve.CacheSize,
				Metrics:   metrics,
				Logger:    logger,
			})
			if err != nil {
				logger.Error("cannot load bundle", zap.String("store", cfg.Store.Root), zap.Error(err))
				return err
			}
			logger.Info("bundle loaded", zap.String("run_id", svc.Context().RunID()))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if cfg.Serve.Reload {
				reloader := service.NewReloader(store, cfg.Expectation(), svc, metrics, logger)
				go func() {
					if err := reloader.Run(ctx); err != nil {
						logger.Error("reloader stopped", zap.Error(err))
					}
				}()
			}

			server := bhttp.NewServer(cfg.Server, svc, metrics, logger)
			errs := make(chan error, 1)
			go func() {
				errs <- server.Start()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errs:
				return err
			case sig := <-quit:
				logger.Info("shutting down", zap.String("signal", sig.String()), zap.String("addr", server.Addr()))
			}

			shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := server.Stop(shutdown); err != nil {
				logger.Warn("server forced to shutdown", zap.Error(err))
			}
			return nil
		},
	}
}

func runsCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded training runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*configPath)
			if err != nil {
				return err
			}
			runs, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			logs, err := runs.LoadTrainingLog(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tMODEL\tLABELS\tROWS\tCV\tTEST\tTRAINED")
			for _, log := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.3f\t%.3f\t%s\n",
					log.RunID, log.ModelName, log.LabelSource, log.DataPoints,
					log.CVAccuracy, log.Accuracy, log.TrainedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show, 0 for all")
	return cmd
}

func issuesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "issues RUN_ID",
		Short: "list the rows cleaning rejected during a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*configPath)
			if err != nil {
				return err
			}
			runs, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			issues, err := runs.LoadIssues(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROW\tRULE\tSEVERITY\tMESSAGE")
			for _, issue := range issues {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", issue.Row, issue.Rule, issue.Severity, issue.Message)
			}
			return w.Flush()
		},
	}
}

func schemaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "print what the current bundle accepts and returns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*configPath)
			if err != nil {
				return err
			}
			svc, err := service.Load(artifact.NewStore(cfg.Store.Root), cfg.Expectation(), service.Options{})
			if err != nil {
				return err
			}
			schema, err := svc.Schema()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), schema)
		},
	}
}

func generateCmd() *cobra.Command {
	var (
		rows int
		seed int64
		out  string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "write a synthetic labelled dataset as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows <= 0 {
				return fmt.Errorf("rows must be positive, got %d", rows)
			}
			w := cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return pipeline.WriteRecords(w, pipeline.Synthesize(rows, seed))
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 500, "number of rows")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout when empty)")
	return cmd
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

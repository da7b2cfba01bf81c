package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openclinical/ccda-analyst/internal/config"
	"github.com/openclinical/ccda-analyst/internal/domain/record"
	"github.com/openclinical/ccda-analyst/internal/platform/ccda"
	"github.com/openclinical/ccda-analyst/internal/platform/db"
	"github.com/openclinical/ccda-analyst/internal/platform/hipaa"
	"github.com/openclinical/ccda-analyst/internal/platform/ingest"
	"github.com/openclinical/ccda-analyst/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ccda-analyst",
		Short:        "C-CDA clinical summary and assistant API",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(flattenCmd())
	root.AddCommand(identityCmd())
	root.AddCommand(migrateCmd())
	return root
}

func newLogger(w io.Writer, dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg.IsDev())

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e, err := newServer(cfg, logger, pool, hipaa.NewAccessLogger(pool))
	if err != nil {
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("model", cfg.ModelName).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a folder of C-CDA documents into the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg.IsDev())

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.DocsFolder
			}
			reset, _ := cmd.Flags().GetBool("reset")
			workers, _ := cmd.Flags().GetInt("workers")
			if workers <= 0 {
				workers = cfg.IngestWorkers
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			withTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
				return db.WithTx(ctx, pool, fn)
			}
			svc := record.NewService(record.NewRepo(pool), ccda.NewFlattener(), withTx)

			res, err := ingest.NewRunner(svc, workers, logger).Run(ctx, dir, reset)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d document(s), stored %d, skipped %d.\n", res.Found, res.Processed, len(res.Failed))
			for _, f := range res.Failed {
				fmt.Fprintf(out, "  %s\n", f.Error())
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Folder of *.xml documents (default DOCS_FOLDER)")
	cmd.Flags().Bool("reset", false, "Replace all stored records")
	cmd.Flags().Int("workers", 0, "Parallel parsers (default INGEST_WORKERS)")
	return cmd
}

func flattenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flatten FILE",
		Short: "Print the flattened clinical summary of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			summary := ccda.NewFlattener().Flatten(ccda.SourceOf(data))
			_, err = io.WriteString(cmd.OutOrStdout(), summary)
			return err
		},
	}
}

func identityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity FILE",
		Short: "Print the patient identity of a document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			id, err := ccda.ExtractIdentityFromBytes(data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(id)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Migrations directory (default: embedded migrations)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Migrations directory (default: embedded migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

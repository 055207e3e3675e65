package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bensuskins/office-hub/internal/config"
	"github.com/bensuskins/office-hub/internal/database"
	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
	"github.com/bensuskins/office-hub/internal/server"
)

var cfg config.Config

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "office-hub",
		Short:         "Office Hub - recurring deadline tracker for accounting offices",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = loaded
			setupLogging(cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(rowsCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(cutCmd())

	return root
}

func setupLogging(level string) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}

// openDatabase opens and migrates the configured database.
func openDatabase(ctx context.Context) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, iCal feed and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			return server.New(db, cfg, prometheus.NewRegistry()).Start()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			slog.Info("database migrated", "path", cfg.DatabasePath)
			return nil
		},
	}
}

func rowsCmd() *cobra.Command {
	var (
		assigneeID string
		taskID     string
		statuses   []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "rows",
		Short: "List projected deadline rows",
		Long: `List projected deadline rows, promoting past-due occurrences first.

Examples:
  office-hub rows
  office-hub rows --assignee 0d6f... --status active,revoked
  office-hub rows --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			filter := repository.AssignmentFilter{}
			if assigneeID != "" {
				filter.AssigneeID = &assigneeID
			}
			if taskID != "" {
				filter.TaskID = &taskID
			}
			for _, status := range statuses {
				filter.Statuses = append(filter.Statuses, models.AssignmentStatus(status))
			}

			service := server.New(db, cfg, prometheus.NewRegistry()).Service()
			rows, err := service.ListDisplayRows(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(rows)
			}
			return printRows(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVarP(&assigneeID, "assignee", "a", "", "only rows for this assignee id")
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "only rows for this task id")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "assignment statuses to include")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")

	return cmd
}

func printRows(out io.Writer, rows []models.DisplayRow) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "DATE\tSTATE\tTITLE\tASSIGNMENT\tFLAGS")
	for _, row := range rows {
		date := "-"
		if row.Date != nil {
			date = models.FormatDate(*row.Date)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", date, row.State, row.Title, row.AssignmentID, rowFlags(row))
	}
	return writer.Flush()
}

func rowFlags(row models.DisplayRow) string {
	var flags []string
	if row.Recurring {
		flags = append(flags, "recurring")
	}
	if row.Orphan {
		flags = append(flags, "moved")
	}
	if row.Fallback {
		flags = append(flags, "fallback")
	}
	return strings.Join(flags, ",")
}

func recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <assignment-id> <YYYY-MM-DD> <state>",
		Short: "Record an occurrence outcome (completed, cancelled or pending)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := models.ParseDate(args[1])
			if err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}

			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			service := server.New(db, cfg, prometheus.NewRegistry()).Service()
			override, err := service.Lifecycle().RecordOutcome(cmd.Context(), args[0], date, models.OccurrenceState(args[2]), nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", models.FormatDate(override.OriginalDate), override.State)
			return nil
		},
	}
}

func cutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cut <assignment-id> <YYYY-MM-DD>",
		Short: "End a recurrence before the given date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := models.ParseDate(args[1])
			if err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}

			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			service := server.New(db, cfg, prometheus.NewRegistry()).Service()
			result, err := service.Lifecycle().CutRecurrenceFrom(cmd.Context(), args[0], cutoff)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d occurrences, recurrence now ends %s\n",
				result.CancelledCount, models.FormatDate(result.NewEndDate))
			return nil
		},
	}
}

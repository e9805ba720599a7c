package main

import (
	"errors"
	"fmt"

	"github.com/Veraticus/invoice-report/internal/cli"
	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/config"
	"github.com/Veraticus/invoice-report/internal/service"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		Long: `List the runs stored in the local archive, newest first.

Use 'invoice history show <run-id>' to see the totals, allocation and
flagged lines of one run.`,
		RunE: runHistoryList,
	}

	cmd.Flags().String("period", "", "Only show runs for this period (YYYY_MM)")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one archived run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	})

	return cmd
}

func openArchive(cmd *cobra.Command) (service.RunArchive, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, common.NewUserError("Configuration is invalid", err)
	}
	if cfg.Archive.Path == "" {
		return nil, common.NewUserError("No archive path is configured", common.ErrMissingConfig)
	}
	store, err := initStorage(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open run archive: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	period, _ := cmd.Flags().GetString("period")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(cmd.Context(), service.RunFilter{Period: period, Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), cli.RenderRunList(runs))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(cmd.Context(), args[0])
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError(fmt.Sprintf("No archived run with id %s", args[0]), err)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderArchivedRun(run))
	return nil
}

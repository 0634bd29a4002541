package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/history"
	"github.com/wesleyorama2/volley/internal/output"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored reports",
	}
	cmd.PersistentFlags().String("history", "", "Directory of the report history store")
	_ = cmd.MarkPersistentFlagRequired("history")

	list := &cobra.Command{
		Use:   "list [NAME]",
		Short: "List stored runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistoryList,
	}

	show := &cobra.Command{
		Use:   "show KEY",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	show.Flags().Bool("json", false, "Output the report as JSON")
	show.Flags().String("unit", "", "Duration unit: ns, us, ms or s")

	cmd.AddCommand(list, show)
	return cmd
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	dir, _ := cmd.Flags().GetString("history")
	if dir == "" {
		return nil, errors.New("--history is required")
	}
	return history.Open(dir, history.WithLogger(slog.Default()))
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	entries, err := store.List(name)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs")
		return nil
	}

	table := tablewriter.NewTable(cmd.OutOrStdout(),
		tablewriter.WithHeader([]string{"Started", "Campaign", "ID", "Size", "Key"}))
	for _, e := range entries {
		row := []string{
			e.StartedAt.UTC().Format(time.DateTime),
			e.Name,
			e.ID,
			fmt.Sprintf("%d B", e.Size),
			e.Key,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render history table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render history table: %w", err)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	unitFlag, _ := cmd.Flags().GetString("unit")

	unit, err := output.ParseUnit(unitFlag)
	if err != nil {
		return err
	}

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := store.Get(args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.WriteJSON(cmd.OutOrStdout(), rep)
	}
	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		NoColor: noColor,
		Unit:    unit,
	})
	return console.PrintReport(rep)
}

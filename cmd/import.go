package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/caseops/intake-console/internal/agent"
	"github.com/caseops/intake-console/internal/console"
	"github.com/caseops/intake-console/internal/state"
)

var (
	importSheetName string
	importJSON      bool
)

// importCmd runs a one-shot sheet import and prints the resulting board.
var importCmd = &cobra.Command{
	Use:   "import <sheet-id>",
	Short: "Import cases from a spreadsheet and print the result",
	Long: `Run a single import cycle against the agent backend and print a summary
of the resulting board. Useful for verifying sheet bindings and triage
preferences without starting the full dashboard.

Examples:
  # Import the first tab of a spreadsheet
  intake-console import 1AbC...

  # Import a specific tab and dump the full state as JSON
  intake-console import 1AbC... --sheet-name "August Intake" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// sheetsCmd lists the tabs of a spreadsheet.
var sheetsCmd = &cobra.Command{
	Use:   "sheets <sheet-id>",
	Short: "List the tabs available in a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runSheets,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sheetsCmd)

	importCmd.Flags().StringVar(&importSheetName, "sheet-name", "", "Sheet tab to import (optional)")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Print the full dashboard state as JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := log.New(os.Stderr, "[import] ", log.LstdFlags)

	st := state.NewStore(state.Options{Logger: logger})
	agentClient := agent.NewClient(agent.Options{
		BaseURL: config.Agent.URL,
		Token:   config.Agent.Token,
		Logger:  logger,
	})
	c := console.New(console.Options{
		Store:  st,
		Agent:  agentClient,
		Logger: logger,
	})

	if err := c.SyncProfile(ctx); err != nil {
		logger.Printf("profile sync failed, using defaults: %v", err)
	}

	next, err := c.ImportFromSheet(ctx, args[0], importSheetName)
	if err != nil {
		return err
	}

	if importJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(next)
	}

	fmt.Printf("Sheet:    %s (%s)\n", next.Sheet.SheetName, next.Sheet.SheetID)
	fmt.Printf("Visible:  %d cases\n", len(next.Cases))
	fmt.Printf("Queued:   %d cases\n", len(next.QueuedCases))
	fmt.Printf("Total:    %d cases\n", next.Metrics.TotalCases)
	for category, count := range next.Metrics.CasesByCategory {
		fmt.Printf("  %-20s %d\n", category, count)
	}
	return nil
}

func runSheets(cmd *cobra.Command, args []string) error {
	config := GetConfig()
	agentClient := agent.NewClient(agent.Options{
		BaseURL: config.Agent.URL,
		Token:   config.Agent.Token,
		Logger:  log.New(os.Stderr, "[sheets] ", log.LstdFlags),
	})

	names, err := agentClient.ListSheets(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No tabs found")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

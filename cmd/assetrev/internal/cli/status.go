package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusFlags struct {
	verbose bool
	json    bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the next build would change",
	Long: `Compares the assets currently in the output root against the manifest
without writing anything.

Reports which logical names would be added or updated, and which
revisioned files the next build would delete.

The --verbose flag lists individual assets.
The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.verbose, "verbose", false,
		"Show individual asset changes")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for assetrev status.
type StatusOutput struct {
	Pending   bool     `json:"pending"`
	Manifest  string   `json:"manifest"`
	Exists    bool     `json:"exists"`
	Added     []string `json:"added,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Unchanged int      `json:"unchanged"`
	Stale     []string `json:"stale,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := loadProject(nil)
	if err != nil {
		return err
	}
	builder, err := newBuilder(p)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := builder.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute status: %w", err)
	}

	store := builder.Options().Store
	output := StatusOutput{
		Pending:   !report.Changes.IsEmpty() || len(report.Stale) > 0,
		Manifest:  store.Path(),
		Exists:    store.Exists(),
		Added:     report.Changes.Added,
		Updated:   report.Changes.Updated,
		Unchanged: len(report.Changes.Unchanged),
		Stale:     report.Stale,
		Failed:    report.Failed,
	}

	w := cmd.OutOrStdout()
	if statusFlags.json {
		return outputJSON(w, output)
	}

	if !output.Exists {
		fmt.Fprintf(w, "No manifest at %s yet\n", output.Manifest)
	}
	if !output.Pending {
		fmt.Fprintln(w, "Manifest is up to date")
		printList(w, "Failed", "!", output.Failed)
		return nil
	}

	fmt.Fprintf(w, "Pending: %d added, %d updated, %d stale\n",
		len(output.Added), len(output.Updated), len(output.Stale))

	if statusFlags.verbose {
		printList(w, "New assets", "+", output.Added)
		printList(w, "Changed assets", "~", output.Updated)
		printList(w, "Files to delete", "-", output.Stale)
	}
	printList(w, "Failed", "!", output.Failed)

	fmt.Fprintln(w, "\nRun 'assetrev build' to apply")
	return nil
}

func printList(w io.Writer, title, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "  %s %s\n", marker, item)
	}
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

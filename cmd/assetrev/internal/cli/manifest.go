package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/pkg/revision"
)

var manifestFlags struct {
	json bool
	path bool
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the manifest",
	Long: `Prints every logical name in the manifest with the revisioned file it
currently maps to, sorted by logical name.

The --path flag prints only the manifest's location.`,
	Args: cobra.NoArgs,
	RunE: runManifest,
}

func init() {
	manifestCmd.Flags().BoolVar(&manifestFlags.json, "json", false,
		"Output the entries as a JSON object")
	manifestCmd.Flags().BoolVar(&manifestFlags.path, "path", false,
		"Print the manifest path and exit")

	rootCmd.AddCommand(manifestCmd)
}

func runManifest(cmd *cobra.Command, args []string) error {
	p, err := loadProject(nil)
	if err != nil {
		return err
	}

	store, err := revision.OpenFileStore(p.cfg.Manifest.Path, p.cfg.Manifest.Format)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if manifestFlags.path {
		fmt.Fprintln(w, store.Path())
		return nil
	}

	m, err := store.Load()
	if err != nil {
		return err
	}

	if manifestFlags.json {
		return outputJSON(w, m.Map())
	}

	if m.Len() == 0 {
		fmt.Fprintf(w, "Manifest %s is empty\n", store.Path())
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, logical := range m.Keys() {
		physical, _ := m.Get(logical)
		fmt.Fprintf(tw, "%s\t%s\n", logical, physical)
	}
	return tw.Flush()
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanFlags struct {
	json bool
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete revisioned files and the manifest",
	Long: `Deletes every revisioned file the manifest references, then the
manifest itself. Unrevisioned files in the output root are left alone.

A corrupt manifest is removed without deleting any assets.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
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

	res, err := builder.Clean(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cleanFlags.json {
		return outputJSON(w, res)
	}

	for _, e := range res.DeleteErrors {
		fmt.Fprintf(w, "  ! %v\n", e)
	}
	fmt.Fprintf(w, "Deleted %d files", len(res.Deleted))
	if res.ManifestRemoved {
		fmt.Fprint(w, " and the manifest")
	}
	fmt.Fprintln(w)
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retireFlags struct {
	json bool
}

var retireCmd = &cobra.Command{
	Use:   "retire <name>...",
	Short: "Remove logical names from the manifest",
	Long: `Removes each logical name from the manifest and deletes the revisioned
file it mapped to, unless another entry still maps to that file.

Builds never drop entries on their own; retire is how an asset that is
no longer produced leaves the manifest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetire,
}

func init() {
	retireCmd.Flags().BoolVar(&retireFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(retireCmd)
}

func runRetire(cmd *cobra.Command, args []string) error {
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

	res, err := builder.Retire(ctx, args...)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if retireFlags.json {
		return outputJSON(w, res)
	}

	for _, l := range res.Retired {
		fmt.Fprintf(w, "  - %s\n", l)
	}
	for _, l := range res.Missing {
		fmt.Fprintf(w, "  ? %s (not in manifest)\n", l)
	}
	for _, e := range res.DeleteErrors {
		fmt.Fprintf(w, "  ! %v\n", e)
	}
	fmt.Fprintf(w, "Retired %d, deleted %d files\n", len(res.Retired), len(res.Deleted))
	return nil
}

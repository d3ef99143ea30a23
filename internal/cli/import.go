package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories and emotional states from JSON",
		Long:  "Import from a file or stdin. Expects the format produced by export; memories whose id already exists are skipped.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open input", err)
		}
		defer f.Close()
		r = f
	}

	e := mustEngine()
	defer e.Close()

	res, err := e.Import(cmd.Context(), r)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "imported": res})
}

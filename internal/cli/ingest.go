package cli

import (
	"github.com/spf13/cobra"

	"github.com/Allreality/my-twin/internal/ingest"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Load markdown knowledge files as semantic memories",
		Long:  "Split each markdown file into heading-scoped sections and store every section as a semantic memory.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runIngest,
	}

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	e := mustEngine()
	defer e.Close()

	reports := make([]*ingest.Report, 0, len(args))
	for _, path := range args {
		r, err := e.Ingester.IngestFile(cmd.Context(), path)
		if err != nil {
			exitErr("ingest "+path, err)
		}
		reports = append(reports, r)
	}
	printJSON(cmd.OutOrStdout(), reports)
}

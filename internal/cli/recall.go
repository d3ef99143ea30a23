package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Allreality/my-twin/internal/model"
	"github.com/Allreality/my-twin/internal/semantic"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search long-term memories by meaning",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().StringP("type", "t", "", "Filter by type: episodic or semantic")
	cmd.Flags().IntP("limit", "l", semantic.DefaultLimit, "Max results")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	e := mustEngine()
	defer e.Close()

	results, err := e.Memories.Search(cmd.Context(), query, semantic.SearchOptions{
		Type:  model.MemoryType(typ),
		Limit: limit,
	})
	if err != nil {
		exitErr("recall", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "[]")
		return
	}
	for i := range results {
		results[i].Embedding = nil
	}
	printJSON(cmd.OutOrStdout(), results)
}

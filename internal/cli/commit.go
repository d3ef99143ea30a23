package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record a completed exchange",
		Long: "Append the query and response to working memory, store an episodic memory when the " +
			"exchange is important, and update the subject's emotional state.",
		Run: runCommit,
	}

	cmd.Flags().StringP("query", "q", "", "User message (required)")
	cmd.Flags().StringP("response", "r", "", "Twin response (required)")

	cmd.MarkFlagRequired("query")
	cmd.MarkFlagRequired("response")

	RootCmd.AddCommand(cmd)
}

func runCommit(cmd *cobra.Command, args []string) {
	query, _ := cmd.Flags().GetString("query")
	response, _ := cmd.Flags().GetString("response")
	if strings.TrimSpace(query) == "" {
		exitErr("commit", errors.New("query is required"))
	}

	e := mustEngine()
	defer e.Close()

	res := e.Commit(cmd.Context(), "", sessionID, query, response)
	printJSON(cmd.OutOrStdout(), res)
	if err := res.Err(); err != nil {
		exitErr("commit", err)
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Allreality/my-twin/internal/workmem"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the session's working memory",
		Run:   runHistory,
	}

	cmd.Flags().IntP("limit", "l", 0, "Most recent turns to show (0 = all)")
	cmd.Flags().Bool("summary", false, "Print the summary block used in context")
	cmd.Flags().Bool("clear", false, "Forget the session's turns")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	summary, _ := cmd.Flags().GetBool("summary")
	reset, _ := cmd.Flags().GetBool("clear")

	e := mustEngine()
	defer e.Close()
	ctx := cmd.Context()

	if reset {
		if err := e.Turns.Clear(ctx, sessionID); err != nil {
			exitErr("clear", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session":%q}`+"\n", sessionID)
		return
	}

	if summary {
		text, err := workmem.Summarize(ctx, e.Turns, sessionID, limit, e.Config.WorkingMemory.SummaryChars)
		if err != nil {
			exitErr("history", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return
	}

	turns, err := e.Turns.Recent(ctx, sessionID, limit)
	if err != nil {
		exitErr("history", err)
	}
	if len(turns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "[]")
		return
	}
	printJSON(cmd.OutOrStdout(), turns)
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble the prompt context for a message",
		Long: "Fetch the personality, emotional state, relevant memories and recent conversation, " +
			"then fold them into a token budget.",
		Run: runContext,
	}

	cmd.Flags().IntP("budget", "b", 0, "Token budget (default: assembler.budget)")
	cmd.Flags().Bool("json", false, "Print the payload with block and token accounting")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	asJSON, _ := cmd.Flags().GetBool("json")

	query, err := readContent(args)
	if err != nil {
		exitErr("read stdin", err)
	}
	if budget < 0 {
		exitErr("context", errors.New("budget must not be negative"))
	}

	e := mustEngine()
	defer e.Close()

	p, err := e.Context(cmd.Context(), "", sessionID, query, modeFlag, budget)
	if err != nil {
		exitErr("context", err)
	}

	if asJSON {
		printJSON(cmd.OutOrStdout(), p)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), p.Text)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show one long-term memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}
	forgetCmd := &cobra.Command{
		Use:   "forget [id]",
		Short: "Delete a long-term memory",
		Args:  cobra.ExactArgs(1),
		Run:   runForget,
	}

	RootCmd.AddCommand(getCmd, forgetCmd)
}

func runGet(cmd *cobra.Command, args []string) {
	e := mustEngine()
	defer e.Close()

	entry, err := e.Memories.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	entry.Embedding = nil
	printJSON(cmd.OutOrStdout(), entry)
}

func runForget(cmd *cobra.Command, args []string) {
	e := mustEngine()
	defer e.Close()

	if err := e.Memories.Delete(cmd.Context(), args[0]); err != nil {
		exitErr("forget", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", args[0])
}

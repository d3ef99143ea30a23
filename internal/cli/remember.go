package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Allreality/my-twin/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a long-term memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("type", "t", string(model.Semantic), "Type: episodic or semantic")
	cmd.Flags().Float64("valence", 0, "Emotional valence in [-1,1]")
	cmd.Flags().Float64P("importance", "i", 0.5, "Importance in [0,1]")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	valence, _ := cmd.Flags().GetFloat64("valence")
	importance, _ := cmd.Flags().GetFloat64("importance")

	content, err := readContent(args)
	if err != nil {
		exitErr("read stdin", err)
	}
	if content == "" {
		exitErr("remember", errors.New("content is required (positional arg or stdin)"))
	}

	e := mustEngine()
	defer e.Close()

	id, err := e.Memories.Store(cmd.Context(), content, model.MemoryType(typ), valence, importance)
	if err != nil {
		exitErr("remember", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", id)
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Allreality/my-twin/internal/twin"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session: build context, read a response, commit",
		Long: "For each message, print the assembled context, then read the twin's response " +
			"(typed in, or echoed with --echo) and commit the exchange. An empty line ends the session.",
		Run: runChat,
	}

	cmd.Flags().Bool("echo", false, "Use the message itself as the response")
	cmd.Flags().Bool("new", false, "Start a new session with a generated id")
	cmd.Flags().IntP("budget", "b", 0, "Token budget (default: assembler.budget)")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	echo, _ := cmd.Flags().GetBool("echo")
	fresh, _ := cmd.Flags().GetBool("new")
	budget, _ := cmd.Flags().GetInt("budget")

	session := sessionID
	if fresh {
		session = uuid.NewString()
	}

	e := mustEngine()
	defer e.Close()

	if err := chat(cmd.Context(), e, session, budget, echo, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		exitErr("chat", err)
	}
}

func chat(ctx context.Context, e *twin.Engine, session string, budget int, echo bool, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	read := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	fmt.Fprintf(out, "session %s\n", session)
	if g := e.Descriptor(modeFlag).Greeting(); g != "" {
		fmt.Fprintln(out, g)
	}
	for {
		query, ok := read("you> ")
		if !ok || query == "" {
			return sc.Err()
		}

		p, err := e.Context(ctx, "", session, query, modeFlag, budget)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n--- context (%d/%d tokens) ---\n%s\n---\n", p.Tokens, p.Budget, p.Text)

		response := query
		if !echo {
			if response, ok = read("twin> "); !ok {
				return sc.Err()
			}
		}

		res := e.Commit(ctx, "", session, query, response)
		if err := res.Err(); err != nil {
			fmt.Fprintf(out, "commit: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "(importance %.2f, sentiment %.2f", res.Importance, res.Sentiment)
		if res.State != nil {
			fmt.Fprintf(out, ", feeling %s %.1f", res.State.Emotion, res.State.Intensity)
		}
		fmt.Fprintln(out, ")")
	}
}

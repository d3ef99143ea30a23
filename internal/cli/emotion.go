package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Allreality/my-twin/internal/emotion"
	"github.com/Allreality/my-twin/internal/turn"
)

func init() {
	cmd := &cobra.Command{
		Use:   "emotion",
		Short: "Inspect or update the tracked emotional state",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current emotional state with decay applied",
		Run:   runEmotionGet,
	}
	getCmd.Flags().Bool("render", false, "Print the prompt block instead of JSON")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Fold a sentiment event into the emotional state",
		Run:   runEmotionUpdate,
	}
	updateCmd.Flags().Float64("sentiment", 0, "Sentiment in [-1,1]")
	updateCmd.Flags().StringP("text", "t", "", "Score this text with the rule-based scorer instead of --sentiment")
	updateCmd.Flags().String("trigger", "", "What caused the change")

	cmd.AddCommand(getCmd, updateCmd)
	RootCmd.AddCommand(cmd)
}

func runEmotionGet(cmd *cobra.Command, args []string) {
	render, _ := cmd.Flags().GetBool("render")

	e := mustEngine()
	defer e.Close()

	st, err := e.Emotions.Get(cmd.Context(), e.Config.Subject)
	if err != nil {
		exitErr("emotion get", err)
	}
	if render {
		fmt.Fprintln(cmd.OutOrStdout(), emotion.Render(st, time.Now()))
		return
	}
	printJSON(cmd.OutOrStdout(), st)
}

func runEmotionUpdate(cmd *cobra.Command, args []string) {
	sentiment, _ := cmd.Flags().GetFloat64("sentiment")
	text, _ := cmd.Flags().GetString("text")
	trigger, _ := cmd.Flags().GetString("trigger")

	if text != "" {
		s, err := turn.Rules{}.ScoreSentiment(cmd.Context(), text)
		if err != nil {
			exitErr("score sentiment", err)
		}
		sentiment = s
		if trigger == "" {
			trigger = turn.Trigger(text)
		}
	}

	e := mustEngine()
	defer e.Close()

	st, err := e.Emotions.Update(cmd.Context(), e.Config.Subject, sentiment, trigger)
	if err != nil {
		exitErr("emotion update", err)
	}
	printJSON(cmd.OutOrStdout(), st)
}

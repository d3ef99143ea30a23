package emotion

import (
	"fmt"
	"strings"
	"time"

	"github.com/Allreality/my-twin/internal/model"
)

// Render formats a (decayed) state as a context block.
func Render(st model.EmotionalState, now time.Time) string {
	var hours float64
	if !st.LastUpdate.IsZero() {
		hours = now.Sub(st.LastUpdate).Hours()
	}
	trigger := st.Trigger
	if trigger == "" {
		trigger = "none"
	}

	var b strings.Builder
	b.WriteString("Current emotional state:\n")
	fmt.Fprintf(&b, "Emotion: %s\n", st.Emotion)
	fmt.Fprintf(&b, "Intensity: %.1f/1.0\n", st.Intensity)
	fmt.Fprintf(&b, "Trigger: %s\n", trigger)
	fmt.Fprintf(&b, "Duration: %.1f hours\n", hours)
	b.WriteString("\nRespond in a way that reflects this emotional state.")
	return b.String()
}

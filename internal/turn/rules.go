package turn

import (
	"context"
	"strings"
	"unicode"
)

var positiveWords = map[string]float64{
	"love": 1, "loved": 1, "amazing": 1, "wonderful": 1, "fantastic": 1, "excellent": 1,
	"great": 0.8, "happy": 0.8, "glad": 0.7, "excited": 0.8, "beautiful": 0.7, "thanks": 0.5,
	"thank": 0.5, "good": 0.5, "nice": 0.5, "enjoy": 0.6, "enjoyed": 0.6, "fun": 0.6,
	"proud": 0.7, "grateful": 0.8, "awesome": 0.9, "like": 0.3, "hope": 0.3, "win": 0.6, "won": 0.6,
}

var negativeWords = map[string]float64{
	"hate": 1, "terrible": 1, "awful": 1, "horrible": 1, "died": 1, "death": 0.9,
	"sad": 0.8, "angry": 0.8, "upset": 0.7, "worried": 0.6, "anxious": 0.7, "afraid": 0.7,
	"bad": 0.6, "lost": 0.6, "lose": 0.5, "sick": 0.6, "hurt": 0.7, "fired": 0.8,
	"tired": 0.4, "stressed": 0.6, "sorry": 0.4, "problem": 0.4, "wrong": 0.5, "fail": 0.6, "failed": 0.7,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "didn't": true, "isn't": true,
	"wasn't": true, "can't": true, "won't": true, "doesn't": true, "nothing": true,
}

var disclosurePhrases = []string{
	"i am ", "i'm ", "my ", "i feel", "i love", "i hate", "i work", "i live", "i was born",
	"i have ", "i've ", "we are", "our ",
}

var rememberPhrases = []string{
	"remember", "don't forget", "do not forget", "important", "never forget", "keep in mind",
}

// Rules is a lexicon-based scorer that needs no model call.
type Rules struct{}

// ScoreSentiment averages lexicon hits, flipping a word's polarity when one
// of the two preceding words is a negation. Text with no hits scores 0.
func (Rules) ScoreSentiment(_ context.Context, text string) (float64, error) {
	words := words(text)
	var sum float64
	hits := 0
	for i, w := range words {
		v, ok := positiveWords[w]
		if !ok {
			if n, neg := negativeWords[w]; neg {
				v, ok = -n, true
			}
		}
		if !ok {
			continue
		}
		if negated(words, i) {
			v = -v * 0.5
		}
		sum += v
		hits++
	}
	if hits == 0 {
		return 0, nil
	}
	return clamp(sum/float64(hits), -1, 1), nil
}

// ScoreImportance rewards self-disclosure, explicit requests to remember,
// strong sentiment, and longer messages.
func (r Rules) ScoreImportance(ctx context.Context, query, response string) (float64, error) {
	q := strings.ToLower(query)
	s := 0.2
	if containsAny(q, rememberPhrases) {
		s += 0.4
	}
	if containsAny(" "+q, disclosurePhrases) {
		s += 0.25
	}
	if n := len(words(q)); n >= 25 {
		s += 0.15
	} else if n >= 12 {
		s += 0.05
	}
	if sent, _ := r.ScoreSentiment(ctx, query); sent > 0.5 || sent < -0.5 {
		s += 0.15
	}
	return clamp(s, 0, 1), nil
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func negated(words []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if negations[words[j]] {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	_ ImportanceScorer = Rules{}
	_ SentimentScorer  = Rules{}
)

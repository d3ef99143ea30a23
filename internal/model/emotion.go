package model

import "time"

// Emotion is a categorical affect label.
type Emotion string

const (
	Neutral       Emotion = "neutral"
	Happy         Emotion = "happy"
	Sad           Emotion = "sad"
	Anxious       Emotion = "anxious"
	Content       Emotion = "content"
	Contemplative Emotion = "contemplative"
	Excited       Emotion = "excited"
)

// ValidEmotions are the allowed emotion labels.
var ValidEmotions = map[Emotion]bool{
	Neutral:       true,
	Happy:         true,
	Sad:           true,
	Anxious:       true,
	Content:       true,
	Contemplative: true,
	Excited:       true,
}

// EmotionalState is the affect of one subject at LastUpdate.
// Intensity is stored undecayed; readers project decay from LastUpdate.
type EmotionalState struct {
	Subject    string    `json:"subject"`
	Emotion    Emotion   `json:"emotion"`
	Intensity  float64   `json:"intensity"`
	Trigger    string    `json:"trigger,omitempty"`
	LastUpdate time.Time `json:"last_update"`
	Momentum   float64   `json:"momentum"`
}

// Package emotion tracks a decaying, momentum-weighted affect per subject.
//
// Every update first decays the stored intensity by the hours elapsed since
// the last update, then blends in the new event:
//
//	decay   = min(Δh * DecayRate, MaxDecay)
//	current = max(0, intensity - decay)
//	next    = clamp(current*momentum + |sentiment|*(1-momentum), 0, 1)
//
// The sign of the sentiment picks the polarity of the resulting label.
package emotion

import (
	"math"
	"time"

	"github.com/Allreality/my-twin/internal/model"
)

const (
	DefaultDecayRate = 0.1 // intensity lost per hour
	DefaultMaxDecay  = 0.5
	DefaultMomentum  = 0.5

	// InitialIntensity is the intensity of a subject that has never been updated.
	InitialIntensity = 0.5

	strongThreshold = 0.6
	mildThreshold   = 0.4
)

// Params tunes the decay and blend rule.
type Params struct {
	DecayRate float64 `mapstructure:"decay_rate"`
	MaxDecay  float64 `mapstructure:"max_decay"`
	Momentum  float64 `mapstructure:"momentum"`
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		DecayRate: DefaultDecayRate,
		MaxDecay:  DefaultMaxDecay,
		Momentum:  DefaultMomentum,
	}
}

// withDefaults replaces negative or NaN values and a momentum above 1.
// Zero is a real setting: no decay, or no resistance to change.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if !(p.DecayRate >= 0) {
		p.DecayRate = d.DecayRate
	}
	if !(p.MaxDecay >= 0) {
		p.MaxDecay = d.MaxDecay
	}
	if !validMomentum(p.Momentum) {
		p.Momentum = d.Momentum
	}
	return p
}

func validMomentum(m float64) bool {
	return m >= 0 && m <= 1
}

// Decay returns intensity after elapsed time has passed. A zero or negative
// elapsed duration leaves the intensity unchanged.
func Decay(intensity float64, elapsed time.Duration, p Params) float64 {
	hours := elapsed.Hours()
	if hours < 0 {
		hours = 0
	}
	decay := math.Min(hours*p.DecayRate, p.MaxDecay)
	return math.Max(0, intensity-decay)
}

// Blend mixes the decayed intensity with the magnitude of a new event.
func Blend(current, sentiment, momentum float64) float64 {
	next := current*momentum + math.Abs(sentiment)*(1-momentum)
	return clamp(next, 0, 1)
}

// Label maps an intensity and event polarity to an emotion. A zero sentiment
// keeps the polarity of prev.
func Label(intensity, sentiment float64, prev model.Emotion) model.Emotion {
	pol := polarity(sentiment, prev)
	switch {
	case intensity > strongThreshold:
		switch pol {
		case 1:
			return model.Happy
		case -1:
			return model.Sad
		}
		return model.Contemplative
	case intensity > mildThreshold:
		switch pol {
		case 1:
			return model.Content
		case -1:
			return model.Anxious
		}
		return model.Contemplative
	default:
		return model.Neutral
	}
}

func polarity(sentiment float64, prev model.Emotion) int {
	switch {
	case sentiment > 0:
		return 1
	case sentiment < 0:
		return -1
	}
	switch prev {
	case model.Happy, model.Content, model.Excited:
		return 1
	case model.Sad, model.Anxious:
		return -1
	}
	return 0
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

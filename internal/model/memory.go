// Package model defines the core data types shared by the twin's memory stores.
package model

import "time"

// MemoryType classifies a semantic memory entry.
type MemoryType string

const (
	Episodic MemoryType = "episodic"
	Semantic MemoryType = "semantic"
)

// ValidMemoryTypes are the allowed memory types.
var ValidMemoryTypes = map[MemoryType]bool{
	Episodic: true,
	Semantic: true,
}

// Entry is an immutable long-term memory with its embedding.
type Entry struct {
	ID               string     `json:"id"`
	Content          string     `json:"content"`
	Embedding        []float32  `json:"embedding,omitempty"`
	Type             MemoryType `json:"memory_type"`
	EmotionalValence float64    `json:"emotional_valence"`
	Importance       float64    `json:"importance"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session's working memory.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
}

package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MemoryEntry is one indexed exchange: the user's message, its embedding,
// and optionally the reply it received. Entries are immutable.
type MemoryEntry struct {
	ID        surrealmodels.RecordID `json:"id"`
	Owner     string                 `json:"owner"`
	Text      string                 `json:"text"`
	Response  *string                `json:"response,omitempty"`
	Tone      string                 `json:"tone"`
	Thread    *string                `json:"thread,omitempty"`
	Embedding []float32              `json:"embedding,omitempty"`
	CreatedAt time.Time              `json:"created_at"`

	// Distance is set on search results only.
	Distance float64 `json:"distance,omitempty"`
}

package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Title and preview lengths, in runes of the first user message.
const (
	TitleLen   = 40
	PreviewLen = 100
)

// Turn is one exchange. The opening greeting has an empty User side.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Thread is a persisted conversation owned by one actor.
// Turns are append-only.
type Thread struct {
	ID        surrealmodels.RecordID `json:"id"`
	Owner     string                 `json:"owner"`
	Turns     []Turn                 `json:"turns"`
	Title     string                 `json:"title"`
	Preview   string                 `json:"preview"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ThreadID returns the record key.
func (t *Thread) ThreadID() string {
	id, err := RecordIDString(t.ID)
	if err != nil {
		return ""
	}
	return id
}

// ThreadSummary is the listing view of a thread.
type ThreadSummary struct {
	ID        surrealmodels.RecordID `json:"id"`
	Title     string                 `json:"title"`
	Preview   string                 `json:"preview"`
	UpdatedAt time.Time              `json:"updated_at"`
}

package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
)

// knnEf is the minimum HNSW search breadth.
const knnEf = 40

// InsertMemory writes one memory entry. Optional fields left nil are stored as NONE.
func (c *Client) InsertMemory(ctx context.Context, entry models.MemoryEntry) error {
	content := map[string]any{
		"owner":     entry.Owner,
		"text":      entry.Text,
		"tone":      entry.Tone,
		"embedding": entry.Embedding,
	}
	if entry.Response != nil {
		content["response"] = *entry.Response
	}
	if entry.Thread != nil {
		content["thread"] = *entry.Thread
	}

	if _, err := query[models.MemoryEntry](ctx, c, metrics.OpDBQuery,
		`CREATE memory CONTENT $content RETURN NONE`, map[string]any{"content": content}); err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// NearestMemories returns the limit entries closest to vector across all
// owners, nearest first. Filtering by owner is the caller's job.
func (c *Client) NearestMemories(ctx context.Context, vector []float32, limit int) ([]models.MemoryEntry, error) {
	if limit <= 0 {
		return []models.MemoryEntry{}, nil
	}
	ef := max(knnEf, limit)

	sql := fmt.Sprintf(`
		SELECT id, owner, text, response, tone, thread, created_at,
			vector::distance::knn() AS distance
		FROM memory
		WHERE embedding <|%d,%d|> $emb
		ORDER BY distance
	`, limit, ef)

	rows, err := query[models.MemoryEntry](ctx, c, metrics.OpDBSearch, sql, map[string]any{"emb": vector})
	if err != nil {
		return nil, fmt.Errorf("nearest memories: %w", err)
	}
	return rows, nil
}

// CountMemories returns how many entries an owner has.
func (c *Client) CountMemories(ctx context.Context, owner string) (int, error) {
	rows, err := query[struct {
		Count int `json:"count"`
	}](ctx, c, metrics.OpDBQuery,
		`SELECT count() AS count FROM memory WHERE owner = $owner GROUP ALL`,
		map[string]any{"owner": owner})
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

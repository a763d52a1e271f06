package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
)

// ThreadInput is the data needed to open a thread.
type ThreadInput struct {
	ID       string
	Owner    string
	Greeting string
	Title    string
	Preview  string
}

func turnContent(t models.Turn) map[string]any {
	return map[string]any{"user": t.User, "assistant": t.Assistant}
}

// CreateThread creates the thread with its greeting turn and links it to the
// owner in one transaction. If the thread already exists nothing is written
// and the stored thread is returned.
func (c *Client) CreateThread(ctx context.Context, in ThreadInput) (*models.Thread, error) {
	err := c.exec(ctx, `
		BEGIN TRANSACTION;
		IF !record::exists(type::record("thread", $id)) {
			CREATE type::record("thread", $id) CONTENT {
				owner: $owner,
				turns: [$greeting],
				title: $title,
				preview: $preview
			};
			UPDATE type::record("user", $owner) SET
				thread_ids = array::union(thread_ids ?? [], [$id]);
		};
		COMMIT TRANSACTION;
	`, map[string]any{
		"id":       in.ID,
		"owner":    in.Owner,
		"greeting": turnContent(models.Turn{Assistant: in.Greeting}),
		"title":    in.Title,
		"preview":  in.Preview,
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	thread, err := c.GetThread(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("create thread: %w", ErrNotFound)
	}
	return thread, nil
}

// GetThread retrieves a thread by id.
// Returns nil if not found.
func (c *Client) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	rows, err := query[models.Thread](ctx, c, metrics.OpDBQuery,
		`SELECT * FROM type::record("thread", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0]
	if t.Turns == nil {
		t.Turns = []models.Turn{}
	}
	return &t, nil
}

// AppendTurn appends one turn in a single statement and returns the new turn count.
func (c *Client) AppendTurn(ctx context.Context, id string, turn models.Turn) (int, error) {
	rows, err := query[models.Thread](ctx, c, metrics.OpDBQuery, `
		UPDATE type::record("thread", $id) SET
			turns += $turn,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "turn": turnContent(turn)})
	if err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("append turn: %w", ErrNotFound)
	}
	return len(rows[0].Turns), nil
}

// ListThreads returns summaries of the owner's threads, most recently active first.
func (c *Client) ListThreads(ctx context.Context, owner string) ([]models.ThreadSummary, error) {
	rows, err := query[models.ThreadSummary](ctx, c, metrics.OpDBQuery, `
		SELECT id, title, preview, updated_at FROM thread
		WHERE owner = $owner
		ORDER BY updated_at DESC
	`, map[string]any{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return rows, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
)

// UserInput is the data needed to register a user.
type UserInput struct {
	ID           string
	Username     string
	PasswordHash string
	Profile      models.Profile
}

func profileContent(p models.Profile) map[string]any {
	return map[string]any{
		"name":        p.Name,
		"age":         p.Age,
		"gender":      p.Gender,
		"personality": p.Personality,
		"tone":        p.Tone,
		"persona":     p.Persona,
		"custom":      p.Custom,
	}
}

// CreateUser inserts a user. A taken username or id yields ErrAlreadyExists.
func (c *Client) CreateUser(ctx context.Context, in UserInput) (*models.User, error) {
	rows, err := query[models.User](ctx, c, metrics.OpDBQuery, `
		CREATE type::record("user", $id) CONTENT {
			username: $username,
			password_hash: $password_hash,
			profile: $profile,
			symbols: [],
			thread_ids: []
		} RETURN AFTER
	`, map[string]any{
		"id":            in.ID,
		"username":      in.Username,
		"password_hash": in.PasswordHash,
		"profile":       profileContent(in.Profile),
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create user: no result returned")
	}
	u := rows[0]
	u.Normalize()
	return &u, nil
}

// GetUser retrieves a user by actor id.
// Returns nil if not found.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	rows, err := query[models.User](ctx, c, metrics.OpDBQuery,
		`SELECT * FROM type::record("user", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	u := rows[0]
	u.Normalize()
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
// Returns nil if not found.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	rows, err := query[models.User](ctx, c, metrics.OpDBQuery,
		`SELECT * FROM user WHERE username = $username LIMIT 1`, map[string]any{"username": username})
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	u := rows[0]
	u.Normalize()
	return &u, nil
}

// ListUsers returns all users, oldest first.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := query[models.User](ctx, c, metrics.OpDBQuery,
		`SELECT * FROM user ORDER BY created_at ASC`, nil)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range rows {
		rows[i].Normalize()
	}
	return rows, nil
}

// MergeSymbols adds symbols to the user's set in one statement and returns
// the resulting set. Existing symbols are never removed.
func (c *Client) MergeSymbols(ctx context.Context, id string, symbols []string) ([]string, error) {
	if symbols == nil {
		symbols = []string{}
	}
	rows, err := query[models.User](ctx, c, metrics.OpDBQuery, `
		UPDATE type::record("user", $id) SET
			symbols = array::union(symbols ?? [], $symbols)
		RETURN AFTER
	`, map[string]any{"id": id, "symbols": symbols})
	if err != nil {
		return nil, fmt.Errorf("merge symbols: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("merge symbols: %w", ErrNotFound)
	}
	return rows[0].Symbols, nil
}

// SetAct updates the user's lore act.
func (c *Client) SetAct(ctx context.Context, id, act string) error {
	rows, err := query[models.User](ctx, c, metrics.OpDBQuery,
		`UPDATE type::record("user", $id) SET act = $act RETURN AFTER`,
		map[string]any{"id": id, "act": act})
	if err != nil {
		return fmt.Errorf("set act: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("set act: %w", ErrNotFound)
	}
	return nil
}

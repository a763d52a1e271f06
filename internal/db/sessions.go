package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
)

// CreateSession stores a session token for userID that expires after ttl.
func (c *Client) CreateSession(ctx context.Context, token, userID string, ttl time.Duration) (*models.Session, error) {
	rows, err := query[models.Session](ctx, c, metrics.OpDBQuery, `
		CREATE type::record("session", $token) CONTENT {
			user: $user,
			expires_at: time::now() + <duration>$ttl
		} RETURN AFTER
	`, map[string]any{
		"token": token,
		"user":  userID,
		"ttl":   fmt.Sprintf("%ds", int64(ttl/time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create session: no result returned")
	}
	return &rows[0], nil
}

// GetSession retrieves an unexpired session by token.
// Returns nil if the token is unknown or expired.
func (c *Client) GetSession(ctx context.Context, token string) (*models.Session, error) {
	rows, err := query[models.Session](ctx, c, metrics.OpDBQuery,
		`SELECT * FROM type::record("session", $token) WHERE expires_at > time::now()`,
		map[string]any{"token": token})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	if err := c.exec(ctx, `DELETE type::record("session", $token)`, map[string]any{"token": token}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes expired sessions and returns how many were deleted.
func (c *Client) DeleteExpiredSessions(ctx context.Context) (int, error) {
	rows, err := query[models.Session](ctx, c, metrics.OpDBQuery,
		`DELETE session WHERE expires_at <= time::now() RETURN BEFORE`, nil)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return len(rows), nil
}

package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/msomdec/tasktide/internal/domain"
)

// CreateUser registers a new user record. A conflicting email maps to
// ErrDuplicateEmail.
func (c *Client) CreateUser(ctx context.Context, user *domain.User) error {
	status, err := c.do(ctx, http.MethodPost, "/users", nil, user, user)
	if err != nil {
		if status == http.StatusConflict {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID fetches one user.
func (c *Client) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	status, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &user)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail looks a user up by email address.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var users []domain.User
	query := url.Values{"email": {email}}
	if _, err := c.do(ctx, http.MethodGet, "/users", query, nil, &users); err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, domain.ErrNotFound
	}
	return &users[0], nil
}

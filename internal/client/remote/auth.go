package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/plateful/plateful/internal/common"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account on the server.
func (c *Client) Register(ctx context.Context, username, password string) error {
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	resp, err := c.do(ctx, "register", http.MethodPost,
		c.baseURL+"/api/v1/auth/register", credentials{Username: username, Password: password}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return common.ErrAlreadyExists
	default:
		return c.statusError("register", resp, "")
	}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	resp, err := c.do(ctx, "login", http.MethodPost,
		c.baseURL+"/api/v1/auth/login", credentials{Username: username, Password: password}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError("login", resp, "")
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("login: failed to decode response: %w", err)
	}
	return body.Token, nil
}

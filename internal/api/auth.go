package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"autobot-console/internal/model"
)

// ErrNoSessionCookie means /login succeeded without issuing a session.
var ErrNoSessionCookie = errors.New("登录响应缺少会话")

// Login posts credentials and returns the issued session cookie value.
// Wrong credentials come back as *HTTPError, never ErrUnauthorized.
func (c *Client) Login(ctx context.Context, username, password string) (string, *model.AccountUser, error) {
	var res model.LoginResult
	body := map[string]string{"username": username, "password": password}
	resp, err := c.do(ctx, "/login", Options{Method: http.MethodPost, Body: body}, &res)
	if err != nil {
		return "", nil, fmt.Errorf("login: %w", err)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName && cookie.Value != "" {
			return cookie.Value, &res.User, nil
		}
	}
	return "", nil, ErrNoSessionCookie
}

func (c *Client) Me(ctx context.Context) (*model.AccountUser, error) {
	var res struct {
		User model.AccountUser `json:"user"`
	}
	if err := c.Get(ctx, "/api/me", nil, &res); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &res.User, nil
}

func (c *Client) Logout(ctx context.Context) (*model.Message, error) {
	var msg model.Message
	if err := c.Post(ctx, "/api/logout", nil, &msg); err != nil {
		return nil, fmt.Errorf("logout: %w", err)
	}
	return &msg, nil
}

package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type accountPayload struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (p accountPayload) user() User {
	name := p.FullName
	if name == "" {
		name = p.Email
	}
	return User{ID: p.ID, Name: name}
}

// Login exchanges credentials at serverURL for a token and the signed-in
// user.
func Login(ctx context.Context, httpClient *http.Client, serverURL, email, password string) (string, User, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", User{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL(serverURL, "/login"), bytes.NewReader(payload))
	if err != nil {
		return "", User{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", User{}, fmt.Errorf("login: %w", err)
	}
	body, err := readResponse(resp)
	if err != nil {
		return "", User{}, fmt.Errorf("login: %w", err)
	}

	var response struct {
		Token string         `json:"token"`
		User  accountPayload `json:"user"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", User{}, fmt.Errorf("decode login response: %w", err)
	}
	if response.Token == "" || response.User.ID <= 0 {
		return "", User{}, fmt.Errorf("login: incomplete response")
	}
	return response.Token, response.User.user(), nil
}

// ResolveUser looks up the user a token belongs to.
func ResolveUser(ctx context.Context, httpClient *http.Client, serverURL, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoCredentials
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL(serverURL, "/me"), nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("resolve user: %w", err)
	}
	body, err := readResponse(resp)
	if err != nil {
		return User{}, fmt.Errorf("resolve user: %w", err)
	}

	var response struct {
		User accountPayload `json:"user"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return User{}, fmt.Errorf("decode current user: %w", err)
	}
	if response.User.ID <= 0 {
		return User{}, fmt.Errorf("resolve user: missing id")
	}
	return response.User.user(), nil
}

func authURL(serverURL, path string) string {
	return strings.TrimRight(serverURL, "/") + "/api/auth" + path
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ExecuteRequest submits source code to the sandbox.
type ExecuteRequest struct {
	LanguageID int    `json:"languageId"`
	SourceCode string `json:"sourceCode"`
	Stdin      string `json:"stdin"`
}

// ExecuteResult is the sandbox outcome.
type ExecuteResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compileOutput"`
	Status        string `json:"status"`
	Time          string `json:"time"`
	Memory        int64  `json:"memory"`
}

// Execute runs code in the remote sandbox.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	var out ExecuteResult
	if err := c.do(ctx, http.MethodPost, "/api/execute", "", nil, req, &out); err != nil {
		return ExecuteResult{}, fmt.Errorf("execute: %w", err)
	}
	return out, nil
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	User  string `json:"user"`
	Token string `json:"token"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResult, error) {
	return c.auth(ctx, "/api/auth/login", username, password)
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, username, password string) (AuthResult, error) {
	return c.auth(ctx, "/api/auth/register", username, password)
}

func (c *Client) auth(ctx context.Context, path, username, password string) (AuthResult, error) {
	var out AuthResult
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, path, "", nil, in, &out); err != nil {
		return AuthResult{}, fmt.Errorf("authenticate %s: %w", username, err)
	}
	if out.Token == "" {
		return AuthResult{}, fmt.Errorf("authenticate %s: no token in response", username)
	}
	return out, nil
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	User  string `json:"user"`
	Score int    `json:"score"`
	Runs  int    `json:"runs"`
}

// Leaderboard returns the top limit entries; limit <= 0 uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, "/api/leaderboard", "", q, nil, &out); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return out, nil
}

// TerminalResult is the output of a pass-through command.
type TerminalResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
	Cwd      string `json:"cwd"`
}

// Terminal runs command on the remote terminal backend in cwd.
func (c *Client) Terminal(ctx context.Context, command, cwd string) (TerminalResult, error) {
	var out TerminalResult
	in := map[string]string{"command": command, "cwd": cwd}
	if err := c.do(ctx, http.MethodPost, "/api/terminal", "", nil, in, &out); err != nil {
		return TerminalResult{}, fmt.Errorf("terminal: %w", err)
	}
	return out, nil
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Node is one entry of the project tree.
type Node struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"` // "file" or "folder"
	Children []Node `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool { return n.Type == "folder" }

// Match is one search hit.
type Match struct {
	File    string `json:"file"`
	LineNum int    `json:"lineNum"`
	Line    string `json:"line"`
}

type success struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s success) check(op string) error {
	if s.Success {
		return nil
	}
	msg := s.Error
	if msg == "" {
		msg = op + " failed"
	}
	return &ServiceError{Status: http.StatusOK, Message: msg}
}

// ReadFile returns the content of path.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/files/read", "", url.Values{"path": {path}}, nil, &out); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return out.Content, nil
}

// SaveFile writes content to path.
func (c *Client) SaveFile(ctx context.Context, path, content string) error {
	var out success
	in := map[string]string{"path": path, "content": content}
	if err := c.do(ctx, http.MethodPost, "/api/files/save", "", nil, in, &out); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return out.check("save")
}

// DeleteFile removes path.
func (c *Client) DeleteFile(ctx context.Context, path string) error {
	var out success
	escaped := "/api/files/" + url.PathEscape(path)
	if err := c.do(ctx, http.MethodDelete, "/api/files/"+path, escaped, nil, nil, &out); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return out.check("delete")
}

// RenameFile renames oldPath to newName within its folder and returns the
// new path assigned by the server.
func (c *Client) RenameFile(ctx context.Context, oldPath, newName string) (string, error) {
	var out struct {
		success
		NewPath string `json:"newPath"`
	}
	in := map[string]string{"oldPath": oldPath, "newName": newName}
	if err := c.do(ctx, http.MethodPost, "/api/files/rename", "", nil, in, &out); err != nil {
		return "", fmt.Errorf("rename %s: %w", oldPath, err)
	}
	if err := out.check("rename"); err != nil {
		return "", err
	}
	return out.NewPath, nil
}

// Structure returns the project tree.
func (c *Client) Structure(ctx context.Context) ([]Node, error) {
	var out []Node
	if err := c.do(ctx, http.MethodGet, "/api/files/structure", "", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	return out, nil
}

// CreateFile creates path with initial content.
func (c *Client) CreateFile(ctx context.Context, path, content string) error {
	var out success
	in := map[string]string{"path": path, "content": content}
	if err := c.do(ctx, http.MethodPost, "/api/files/create", "", nil, in, &out); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return out.check("create")
}

// CreateFolder creates a folder.
func (c *Client) CreateFolder(ctx context.Context, path string) error {
	var out success
	if err := c.do(ctx, http.MethodPost, "/api/files/folder", "", nil, map[string]string{"path": path}, &out); err != nil {
		return fmt.Errorf("create folder %s: %w", path, err)
	}
	return out.check("create folder")
}

// Search finds lines containing q. max <= 0 leaves the limit to the server.
func (c *Client) Search(ctx context.Context, q string, max int) ([]Match, error) {
	query := url.Values{"q": {q}}
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}
	var out []Match
	if err := c.do(ctx, http.MethodGet, "/api/files/search", "", query, nil, &out); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return out, nil
}

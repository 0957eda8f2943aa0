package devserver

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

var (
	errOutsideRoot = errors.New("path escapes the project root")
	errExists      = errors.New("a file with that name already exists")
	errNotFound    = errors.New("file not found")
)

// projectFS serves the playground file API from a directory.
type projectFS struct {
	root string
}

// resolve maps a slash-separated project path to a path under root.
func (p projectFS) resolve(rel string) (string, string, error) {
	clean := path.Clean("/" + strings.TrimSpace(rel))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", "", fmt.Errorf("%w: %q", errOutsideRoot, rel)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", "", fmt.Errorf("%w: %q", errOutsideRoot, rel)
		}
	}
	return clean, filepath.Join(p.root, filepath.FromSlash(clean)), nil
}

func (p projectFS) read(rel string) (string, error) {
	_, abs, err := p.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", errNotFound
	}
	return string(data), err
}

func (p projectFS) save(rel, content string) error {
	_, abs, err := p.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

func (p projectFS) create(rel, content string) error {
	_, abs, err := p.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return errExists
	}
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (p projectFS) mkdir(rel string) error {
	_, abs, err := p.resolve(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return errExists
	}
	return os.MkdirAll(abs, 0o755)
}

func (p projectFS) remove(rel string) error {
	_, abs, err := p.resolve(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		return errNotFound
	}
	return os.RemoveAll(abs)
}

// rename moves oldRel to newName within the same folder and returns the new
// project path.
func (p projectFS) rename(oldRel, newName string) (string, error) {
	if newName == "" || strings.ContainsAny(newName, `/\`) {
		return "", fmt.Errorf("invalid name %q", newName)
	}
	clean, abs, err := p.resolve(oldRel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		return "", errNotFound
	}
	newRel := path.Join(path.Dir(clean), newName)
	_, newAbs, err := p.resolve(newRel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(newAbs); err == nil {
		return "", errExists
	}
	if err := os.Rename(abs, newAbs); err != nil {
		return "", err
	}
	return newRel, nil
}

type node struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Children []node `json:"children,omitempty"`
}

func (p projectFS) structure() ([]node, error) {
	return p.list("")
}

func (p projectFS) list(rel string) ([]node, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	out := []node{}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		child := path.Join(rel, e.Name())
		if e.IsDir() {
			kids, err := p.list(child)
			if err != nil {
				return nil, err
			}
			out = append(out, node{Name: e.Name(), Path: child, Type: "folder", Children: kids})
			continue
		}
		out = append(out, node{Name: e.Name(), Path: child, Type: "file"})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Type == "folder") != (out[j].Type == "folder") {
			return out[i].Type == "folder"
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type match struct {
	File    string `json:"file"`
	LineNum int    `json:"lineNum"`
	Line    string `json:"line"`
}

// search returns up to max lines containing q, case-insensitively.
func (p projectFS) search(q string, max int) ([]match, error) {
	out := []match{}
	if q == "" {
		return out, nil
	}
	needle := strings.ToLower(q)
	err := filepath.WalkDir(p.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && abs != p.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, abs)
		if err != nil {
			return err
		}
		f, err := os.Open(abs)
		if err != nil {
			return nil
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for n := 1; sc.Scan(); n++ {
			if strings.Contains(strings.ToLower(sc.Text()), needle) {
				out = append(out, match{File: filepath.ToSlash(rel), LineNum: n, Line: sc.Text()})
				if len(out) >= max {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	return out, err
}

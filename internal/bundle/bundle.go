// Package bundle packs project files into a portable export and reads
// such exports back.
package bundle

import (
	"path"
	"time"

	"github.com/fakeyudi/playground/internal/languages"
)

// Version is written into every export.
const Version = 1

// Bundle is a set of files exported from one playground deployment.
type Bundle struct {
	Version    int       `json:"version"`
	Origin     string    `json:"origin"` // base URL the files came from
	Author     string    `json:"author,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
	Files      []File    `json:"files"`
}

// File is one exported file.
type File struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// NewFile returns a File for p, naming its language by extension.
func NewFile(p, content string) File {
	f := File{Path: p, Content: content}
	if l, ok := languages.ForFile(path.Base(p)); ok {
		f.Language = l.Name
	}
	return f
}

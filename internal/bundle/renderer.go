package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	versionSentinel = "<!-- playground-export-version: 1 -->"
	dataPrefix      = "<!-- playground-data: "
	commentEnd      = " -->"
)

// Renderer serializes a Bundle.
type Renderer interface {
	Render(b *Bundle) ([]byte, error)
}

// JSONRenderer renders indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(b *Bundle) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// MarkdownRenderer renders one fenced code block per file, with the whole
// bundle embedded as base64 JSON so that MarkdownParser can read it back
// losslessly.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(b *Bundle) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, base64.StdEncoding.EncodeToString(raw), commentEnd)

	fmt.Fprintf(&sb, "# Playground export — %s — %s\n\n", b.Origin, b.ExportedAt.Format("2006-01-02 15:04:05 MST"))
	if b.Author != "" {
		fmt.Fprintf(&sb, "- Author: %s\n", b.Author)
	}
	fmt.Fprintf(&sb, "- Files: %d\n\n", len(b.Files))

	if len(b.Files) == 0 {
		sb.WriteString("_No files._\n")
	}
	for _, f := range b.Files {
		fmt.Fprintf(&sb, "## %s\n\n", f.Path)
		fence := fenceFor(f.Content)
		sb.WriteString(fence + infoString(f.Language) + "\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString(fence + "\n\n")
	}
	return []byte(sb.String()), nil
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func infoString(language string) string {
	switch language {
	case "C++":
		return "cpp"
	case "C#":
		return "csharp"
	}
	return strings.ToLower(language)
}

// RendererFor picks the renderer for a format name.
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown export format %q (markdown or json)", format)
}

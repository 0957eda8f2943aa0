package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Parser deserializes an export back into a Bundle.
type Parser interface {
	Parse(data []byte) (*Bundle, error)
}

// JSONParser parses a JSON export.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse JSON bundle: %w", err)
	}
	return &b, nil
}

// MarkdownParser reads the base64 JSON payload embedded by MarkdownRenderer.
// The visible Markdown is ignored, so hand edits to it are not imported.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*Bundle, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a playground export: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a playground export: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], commentEnd)
	if end == -1 {
		return nil, fmt.Errorf("not a playground export: malformed data payload")
	}

	raw, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a playground export: corrupted payload: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("not a playground export: embedded JSON: %w", err)
	}
	return &b, nil
}

// ParserFor picks the parser for a file name: .json is JSON, anything else
// is treated as Markdown.
func ParserFor(name string) Parser {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

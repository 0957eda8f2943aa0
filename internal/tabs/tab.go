// Package tabs holds the client-side record of open files.
package tabs

// Tab is one open file in this client session.
type Tab struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path,omitempty"` // empty for never-saved scratch tabs
	Content      string `json:"content"`
	LanguageID   int    `json:"language_id"`
	IsCustomName bool   `json:"is_custom_name"`

	saved string // content as last persisted to the filesystem service
}

// Key returns the collaboration key: the path, or the name for scratch tabs.
func (t Tab) Key() string {
	if t.Path != "" {
		return t.Path
	}
	return t.Name
}

// Unsaved reports whether the content differs from the last persisted value.
func (t Tab) Unsaved() bool {
	return t.Content != t.saved
}

// Scratch reports whether the tab has never been associated with a project path.
func (t Tab) Scratch() bool {
	return t.Path == ""
}

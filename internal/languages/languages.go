// Package languages lists the execution languages the playground supports.
// IDs match the execution service's language identifiers.
package languages

import (
	"path/filepath"
	"strings"
)

// Language binds an execution language to its file extension and starter code.
type Language struct {
	ID        int
	Name      string
	Extension string // with leading dot
	Template  string
}

// DefaultID is the language of the tab created on first launch.
const DefaultID = 71

var all = []Language{
	{ID: 50, Name: "C", Extension: ".c", Template: "#include <stdio.h>\n\nint main(void) {\n    printf(\"Hello, World!\\n\");\n    return 0;\n}\n"},
	{ID: 54, Name: "C++", Extension: ".cpp", Template: "#include <iostream>\n\nint main() {\n    std::cout << \"Hello, World!\" << std::endl;\n    return 0;\n}\n"},
	{ID: 51, Name: "C#", Extension: ".cs", Template: "using System;\n\nclass Program {\n    static void Main() {\n        Console.WriteLine(\"Hello, World!\");\n    }\n}\n"},
	{ID: 60, Name: "Go", Extension: ".go", Template: "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"Hello, World!\")\n}\n"},
	{ID: 62, Name: "Java", Extension: ".java", Template: "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello, World!\");\n    }\n}\n"},
	{ID: 63, Name: "JavaScript", Extension: ".js", Template: "console.log(\"Hello, World!\");\n"},
	{ID: 68, Name: "PHP", Extension: ".php", Template: "<?php\necho \"Hello, World!\\n\";\n"},
	{ID: 71, Name: "Python", Extension: ".py", Template: "print(\"Hello, World!\")\n"},
	{ID: 72, Name: "Ruby", Extension: ".rb", Template: "puts \"Hello, World!\"\n"},
	{ID: 73, Name: "Rust", Extension: ".rs", Template: "fn main() {\n    println!(\"Hello, World!\");\n}\n"},
	{ID: 74, Name: "TypeScript", Extension: ".ts", Template: "console.log(\"Hello, World!\");\n"},
}

// Extensions accepted for project files that are not tied to a language.
var plainExtensions = []string{".txt", ".md", ".json", ".html", ".css", ".yaml", ".yml", ".h", ".hpp"}

// All returns every supported language.
func All() []Language {
	out := make([]Language, len(all))
	copy(out, all)
	return out
}

// ByID returns the language with the given id.
func ByID(id int) (Language, bool) {
	for _, l := range all {
		if l.ID == id {
			return l, true
		}
	}
	return Language{}, false
}

// ByName matches a language name case-insensitively.
func ByName(name string) (Language, bool) {
	for _, l := range all {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Language{}, false
}

// ForFile guesses the language from a file name's extension.
func ForFile(name string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Language{}, false
	}
	for _, l := range all {
		if l.Extension == ext {
			return l, true
		}
	}
	return Language{}, false
}

// Default returns the first-launch language.
func Default() Language {
	l, _ := ByID(DefaultID)
	return l
}

// AllowedExtension reports whether name carries an extension the project
// filesystem accepts.
func AllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	if _, ok := ForFile(name); ok {
		return true
	}
	for _, e := range plainExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// MainFile returns the default file name for a language, e.g. "main.py".
// Java uses "Main.java" because the class name must match.
func MainFile(l Language) string {
	if l.ID == 62 {
		return "Main" + l.Extension
	}
	return "main" + l.Extension
}

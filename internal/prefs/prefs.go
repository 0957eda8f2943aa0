// Package prefs holds the user's editor preferences.
package prefs

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fakeyudi/playground/internal/localstore"
)

// Key is the localstore key holding the preferences.
const Key = "prefs"

// ErrUnknownKey is returned by Get and Set for an unrecognised preference.
var ErrUnknownKey = errors.New("unknown preference")

// Prefs are persisted per profile.
type Prefs struct {
	Theme           string `json:"theme" validate:"oneof=dark light high-contrast"`
	FontSize        int    `json:"font_size" validate:"min=8,max=40"`
	WordWrap        bool   `json:"word_wrap"`
	TabSize         int    `json:"tab_size" validate:"oneof=2 4 8"`
	Minimap         bool   `json:"minimap"`
	LineNumbers     bool   `json:"line_numbers"`
	AutoSave        bool   `json:"autosave"`
	AutoSaveSeconds int    `json:"autosave_seconds" validate:"min=1,max=300"`
	ExportScope     string `json:"export_scope" validate:"oneof=active all"`
	// RunLimit caps executions per calendar day; 0 means unlimited.
	RunLimit int `json:"run_limit" validate:"gte=0,lte=10000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// Defaults returns the preferences of a new profile.
func Defaults() Prefs {
	return Prefs{
		Theme:           "dark",
		FontSize:        14,
		TabSize:         4,
		LineNumbers:     true,
		AutoSave:        true,
		AutoSaveSeconds: 5,
		ExportScope:     "active",
	}
}

// AutoSaveInterval returns the autosave period as a duration.
func (p Prefs) AutoSaveInterval() time.Duration {
	return time.Duration(p.AutoSaveSeconds) * time.Second
}

// Validate reports the first invalid field in user terms.
func (p Prefs) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid %s %v: must satisfy %s", fe.Field(), fe.Value(), constraint(fe))
	}
	return err
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Load reads preferences from kv, falling back to defaults for a new profile.
func Load(kv localstore.KV) (Prefs, error) {
	p := Defaults()
	if err := localstore.GetJSON(kv, Key, &p); err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			return Defaults(), nil
		}
		return Defaults(), fmt.Errorf("load preferences: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Defaults(), fmt.Errorf("stored preferences: %w", err)
	}
	return p, nil
}

// Save validates and stores preferences.
func Save(kv localstore.KV, p Prefs) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := localstore.SetJSON(kv, Key, p); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

type field struct {
	get func(*Prefs) string
	set func(*Prefs, string) error
}

func intField(ptr func(*Prefs) *int) field {
	return field{
		get: func(p *Prefs) string { return strconv.Itoa(*ptr(p)) },
		set: func(p *Prefs, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("expected a number, got %q", v)
			}
			*ptr(p) = n
			return nil
		},
	}
}

func boolField(ptr func(*Prefs) *bool) field {
	return field{
		get: func(p *Prefs) string { return strconv.FormatBool(*ptr(p)) },
		set: func(p *Prefs, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", v)
			}
			*ptr(p) = b
			return nil
		},
	}
}

func stringField(ptr func(*Prefs) *string) field {
	return field{
		get: func(p *Prefs) string { return *ptr(p) },
		set: func(p *Prefs, v string) error { *ptr(p) = v; return nil },
	}
}

var fields = map[string]field{
	"theme":            stringField(func(p *Prefs) *string { return &p.Theme }),
	"font_size":        intField(func(p *Prefs) *int { return &p.FontSize }),
	"word_wrap":        boolField(func(p *Prefs) *bool { return &p.WordWrap }),
	"tab_size":         intField(func(p *Prefs) *int { return &p.TabSize }),
	"minimap":          boolField(func(p *Prefs) *bool { return &p.Minimap }),
	"line_numbers":     boolField(func(p *Prefs) *bool { return &p.LineNumbers }),
	"autosave":         boolField(func(p *Prefs) *bool { return &p.AutoSave }),
	"autosave_seconds": intField(func(p *Prefs) *int { return &p.AutoSaveSeconds }),
	"export_scope":     stringField(func(p *Prefs) *string { return &p.ExportScope }),
	"run_limit":        intField(func(p *Prefs) *int { return &p.RunLimit }),
}

// Keys lists the preference names accepted by Get and Set.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns one preference as text.
func (p Prefs) Get(key string) (string, error) {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return f.get(&p), nil
}

// Set parses value into the named preference and validates the result. p is
// unchanged on error.
func (p *Prefs) Set(key, value string) error {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	next := *p
	if err := f.set(&next, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*p = next
	return nil
}

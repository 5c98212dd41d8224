// Package store persists projects, resource versions, strings and
// translations. Both stores implement versioning.Store and tm.Corpus.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/tm"
	"github.com/minios-linux/locflow/versioning"
)

// ErrNotFound is returned when a project or string does not exist.
var ErrNotFound = errors.New("not found")

// Project is a set of strings sharing one key space.
type Project struct {
	ID             string    `yaml:"id" json:"id"`
	Slug           string    `yaml:"slug" json:"slug"`
	Name           string    `yaml:"name,omitempty" json:"name,omitempty"`
	SourceLanguage string    `yaml:"source_language" json:"source_language"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at"`
}

// Translation is one string translated into one language.
type Translation struct {
	ID             string            `yaml:"id" json:"id"`
	StringID       string            `yaml:"string_id" json:"string_id"`
	Language       string            `yaml:"language" json:"language"`
	TranslatedText string            `yaml:"translated_text" json:"translated_text"`
	PluralForms    map[string]string `yaml:"plural_forms,omitempty" json:"plural_forms,omitempty"`
	Status         tm.Status         `yaml:"status" json:"status"`
	CreatedAt      time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `yaml:"updated_at" json:"updated_at"`
}

// TranslationInput creates or replaces the translation of one string.
type TranslationInput struct {
	Project     string
	Key         string
	Language    string
	Text        string
	PluralForms map[string]string
	Status      tm.Status
}

// Progress counts translations of a project's active strings in one
// language.
type Progress struct {
	Language   string `yaml:"language" json:"language"`
	Total      int    `yaml:"total" json:"total"`
	Translated int    `yaml:"translated" json:"translated"`
	Approved   int    `yaml:"approved" json:"approved"`
}

// Percent returns the translated share of Total, 0 for an empty project.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return 100 * float64(p.Translated) / float64(p.Total)
}

// Store is the full persistence surface used by the CLI.
type Store interface {
	versioning.Store
	tm.Corpus

	EnsureProject(ctx context.Context, slug, name, sourceLanguage string) (*Project, error)
	Project(ctx context.Context, slug string) (*Project, error)
	StringByKey(ctx context.Context, project, key string) (*versioning.TranslatableString, error)
	UpsertTranslation(ctx context.Context, in TranslationInput) (*Translation, error)
	ActiveEntries(ctx context.Context, project string) ([]entry.Entry, error)
	// Translations returns a project's translated text for language keyed
	// for export: plain keys for singular strings and
	// entry.PluralKey(key, category) for each plural form.
	Translations(ctx context.Context, project, language string) (map[string]string, error)
	Versions(ctx context.Context, project, filePath string) ([]versioning.ResourceVersion, error)
	Progress(ctx context.Context, project string) ([]Progress, error)
	Close() error
}

type options struct {
	log zerolog.Logger
	now func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithLogger sets the store's logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func newOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// exportKeys adds the translation of s to out in export key form.
func exportKeys(out map[string]string, key string, t *Translation) {
	if t.TranslatedText != "" {
		out[key] = t.TranslatedText
	}
	for cat, text := range t.PluralForms {
		if text != "" {
			out[entry.PluralKey(key, cat)] = text
		}
	}
}

func translated(t *Translation) bool {
	if t.TranslatedText != "" {
		return true
	}
	for _, text := range t.PluralForms {
		if text != "" {
			return true
		}
	}
	return false
}

// Package versioning ingests new revisions of resource files.
//
// An upload is checksummed, parsed and compared against the project's
// active strings; the resulting changes and a new resource version are
// written in one store transaction. Byte-identical re-uploads are a no-op.
package versioning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/merge"
	"github.com/minios-linux/locflow/registry"
)

// ErrInvalidEncoding rejects uploads that are not valid UTF-8.
var ErrInvalidEncoding = errors.New("content is not valid UTF-8")

// Status of an upload.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusUnchanged Status = "unchanged"
)

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// ResourceVersion is one stored revision of a resource file.
type ResourceVersion struct {
	ID            string    `yaml:"id" json:"id"`
	Project       string    `yaml:"project" json:"project"`
	FilePath      string    `yaml:"file_path" json:"file_path"`
	VersionNumber int       `yaml:"version" json:"version"`
	FileFormat    string    `yaml:"file_format" json:"file_format"`
	Checksum      string    `yaml:"checksum" json:"checksum"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
}

// TranslatableString is the stored form of one source entry. Strings are
// never deleted; a key missing from a later upload is deactivated.
type TranslatableString struct {
	ID          string            `yaml:"id" json:"id"`
	Project     string            `yaml:"project" json:"project"`
	VersionID   string            `yaml:"version_id" json:"version_id"`
	Key         string            `yaml:"key" json:"key"`
	SourceText  string            `yaml:"source_text" json:"source_text"`
	Context     string            `yaml:"context,omitempty" json:"context,omitempty"`
	MaxLength   int               `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	HasPlurals  bool              `yaml:"has_plurals,omitempty" json:"has_plurals,omitempty"`
	PluralForms map[string]string `yaml:"plural_forms,omitempty" json:"plural_forms,omitempty"`
	Order       int               `yaml:"order" json:"order"`
	IsActive    bool              `yaml:"is_active" json:"is_active"`
}

// Entry returns the string's content as an entry.
func (s *TranslatableString) Entry() entry.Entry {
	return entry.Entry{
		Key:         s.Key,
		SourceText:  s.SourceText,
		Context:     s.Context,
		MaxLength:   s.MaxLength,
		HasPlurals:  s.HasPlurals,
		PluralForms: maps.Clone(s.PluralForms),
		Order:       s.Order,
	}
}

// apply copies the content of e onto s.
func (s *TranslatableString) apply(e entry.Entry) {
	s.SourceText = e.SourceText
	s.Context = e.Context
	s.MaxLength = e.MaxLength
	s.HasPlurals = e.HasPlurals
	s.PluralForms = maps.Clone(e.PluralForms)
	s.Order = e.Order
}

// ---------------------------------------------------------------------------
// Store contract
// ---------------------------------------------------------------------------

// Tx is a store transaction scoped to one project and file path.
type Tx interface {
	// VersionByChecksum returns an earlier version of the file with the
	// given checksum, or nil if there is none.
	VersionByChecksum(ctx context.Context, checksum string) (*ResourceVersion, error)
	// LatestVersion returns the highest version number of the file, 0 if none.
	LatestVersion(ctx context.Context) (int, error)
	CreateVersion(ctx context.Context, v *ResourceVersion) error
	// ActiveStrings returns the project's active strings.
	ActiveStrings(ctx context.Context) ([]TranslatableString, error)
	// CreateString stores a new string. If an inactive string with the
	// same key exists it is reactivated in place and s.ID is set to its ID.
	CreateString(ctx context.Context, s *TranslatableString) error
	UpdateString(ctx context.Context, s *TranslatableString) error
	DeactivateStrings(ctx context.Context, ids []string) error
}

// Store runs fn in a transaction that excludes concurrent uploads of the
// same project. If fn returns an error nothing is committed.
type Store interface {
	InTx(ctx context.Context, project, filePath string, fn func(Tx) error) error
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// UploadRequest is one resource file revision.
type UploadRequest struct {
	Project  string
	FilePath string
	Content  []byte
	// Format is the declared format; empty means detect from FilePath.
	Format string
}

// UploadResult summarizes an applied upload.
type UploadResult struct {
	VersionNumber int    `yaml:"version" json:"version"`
	VersionID     string `yaml:"version_id" json:"version_id"`
	Status        Status `yaml:"status" json:"status"`
	New           int    `yaml:"new" json:"new"`
	Updated       int    `yaml:"updated" json:"updated"`
	Removed       int    `yaml:"removed" json:"removed"`
}

// Engine applies uploads to a Store.
type Engine struct {
	store    Store
	registry *registry.Registry
	log      zerolog.Logger
	now      func() time.Time
	locks    keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRegistry sets the codec registry. The default is registry.Default().
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithClock sets the time source for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine writing to store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry.Default(),
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checksum returns the SHA-256 hex digest of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ApplyUpload stores a new revision of a resource file and reports how the
// project's strings changed. Re-uploading content identical to any earlier
// revision of the same file returns that revision with StatusUnchanged.
func (e *Engine) ApplyUpload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if !utf8.Valid(req.Content) {
		return nil, fmt.Errorf("upload %s: %w", req.FilePath, ErrInvalidEncoding)
	}
	format, codec, err := e.registry.Resolve(req.Format, req.FilePath)
	if err != nil {
		return nil, err
	}
	checksum := Checksum(req.Content)

	unlock := e.locks.lock(req.Project + "\x00" + req.FilePath)
	defer unlock()

	log := e.log.With().Str("project", req.Project).Str("file", req.FilePath).Logger()

	var result *UploadResult
	err = e.store.InTx(ctx, req.Project, req.FilePath, func(tx Tx) error {
		existing, err := tx.VersionByChecksum(ctx, checksum)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &UploadResult{
				VersionNumber: existing.VersionNumber,
				VersionID:     existing.ID,
				Status:        StatusUnchanged,
			}
			return nil
		}

		latest, err := tx.LatestVersion(ctx)
		if err != nil {
			return err
		}

		entries, err := codec.Parse(req.Content)
		if err != nil {
			log.Warn().Err(err).Str("format", format).Msg("upload rejected")
			return fmt.Errorf("upload %s: %w", req.FilePath, err)
		}

		version := &ResourceVersion{
			ID:            uuid.NewString(),
			Project:       req.Project,
			FilePath:      req.FilePath,
			VersionNumber: latest + 1,
			FileFormat:    format,
			Checksum:      checksum,
			CreatedAt:     e.now().UTC(),
		}
		if err := tx.CreateVersion(ctx, version); err != nil {
			return err
		}

		delta, err := e.apply(ctx, tx, version, entries)
		if err != nil {
			return err
		}
		result = &UploadResult{
			VersionNumber: version.VersionNumber,
			VersionID:     version.ID,
			Status:        StatusProcessed,
			New:           len(delta.New),
			Updated:       len(delta.Updated),
			Removed:       len(delta.Removed),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("status", string(result.Status)).
		Int("version", result.VersionNumber).
		Int("new", result.New).
		Int("updated", result.Updated).
		Int("removed", result.Removed).
		Msg("upload applied")
	return result, nil
}

// apply writes the delta between the active strings and entries.
func (e *Engine) apply(ctx context.Context, tx Tx, version *ResourceVersion, entries []entry.Entry) (merge.Delta, error) {
	active, err := tx.ActiveStrings(ctx)
	if err != nil {
		return merge.Delta{}, err
	}
	byKey := make(map[string]*TranslatableString, len(active))
	current := make([]entry.Entry, 0, len(active))
	for i := range active {
		byKey[active[i].Key] = &active[i]
		current = append(current, active[i].Entry())
	}

	delta := merge.Diff(current, entries)

	for _, en := range delta.New {
		s := &TranslatableString{
			ID:        uuid.NewString(),
			Project:   version.Project,
			VersionID: version.ID,
			Key:       en.Key,
			IsActive:  true,
		}
		s.apply(en)
		if err := tx.CreateString(ctx, s); err != nil {
			return delta, fmt.Errorf("create string %q: %w", en.Key, err)
		}
	}
	for _, en := range delta.Updated {
		s := byKey[en.Key]
		s.apply(en)
		s.VersionID = version.ID
		if err := tx.UpdateString(ctx, s); err != nil {
			return delta, fmt.Errorf("update string %q: %w", en.Key, err)
		}
	}
	for _, en := range delta.Moved {
		s := byKey[en.Key]
		s.Order = en.Order
		s.MaxLength = en.MaxLength
		if err := tx.UpdateString(ctx, s); err != nil {
			return delta, fmt.Errorf("update string %q: %w", en.Key, err)
		}
	}
	if len(delta.Removed) > 0 {
		ids := make([]string, 0, len(delta.Removed))
		for _, key := range delta.Removed {
			ids = append(ids, byKey[key].ID)
		}
		if err := tx.DeactivateStrings(ctx, ids); err != nil {
			return delta, fmt.Errorf("deactivate strings: %w", err)
		}
	}
	return delta, nil
}

// Package registry maps format identifiers to resource codecs.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/i18next"
	"github.com/minios-linux/locflow/pofile"
	"github.com/minios-linux/locflow/stringsfile"
	"github.com/minios-linux/locflow/xliff"
)

// Constructor returns a fresh codec instance.
type Constructor func() entry.Codec

// ErrUndetectableFormat is returned when a file name's extension does not
// name a registered format.
var ErrUndetectableFormat = errors.New("cannot detect format from file name")

// UnsupportedFormatError reports a lookup of an unknown format.
type UnsupportedFormatError struct {
	Format    string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format '%s'. Supported formats: %s", e.Format, strings.Join(e.Supported, ", "))
}

// Registry is a concurrency-safe set of codecs keyed by normalized format
// identifier. The zero value is not usable; call New or NewDefault.
type Registry struct {
	mu    sync.RWMutex
	ids   map[string]string // identifier or alias -> canonical format
	ctors map[string]Constructor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		ids:   make(map[string]string),
		ctors: make(map[string]Constructor),
	}
}

// NewDefault returns a registry holding the built-in codecs.
func NewDefault() *Registry {
	r := New()
	r.Register(i18next.Format, i18next.New)
	r.Register(pofile.Format, pofile.New, "pot")
	r.Register(stringsfile.Format, stringsfile.New)
	r.Register(xliff.Format, xliff.New, "xlf")
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, created with the built-in
// codecs on first use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = NewDefault() })
	return defaultReg
}

// Normalize lower-cases a format identifier and strips leading dots,
// so ".PO" and "po" name the same format.
func Normalize(format string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(format), "."))
}

// Register adds or replaces a codec under format and any aliases.
// It panics if format is empty or ctor is nil.
func (r *Registry) Register(format string, ctor Constructor, aliases ...string) {
	name := Normalize(format)
	if name == "" {
		panic("registry: Register with empty format")
	}
	if ctor == nil {
		panic("registry: Register with nil constructor for " + name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[name] = name
	r.ctors[name] = ctor
	for _, a := range aliases {
		if a = Normalize(a); a != "" {
			r.ids[a] = name
		}
	}
}

// Unregister removes format together with its aliases. Removing an alias
// removes only that alias.
func (r *Registry) Unregister(format string) {
	name := Normalize(format)

	r.mu.Lock()
	defer r.mu.Unlock()
	canonical, ok := r.ids[name]
	if !ok {
		return
	}
	if canonical != name {
		delete(r.ids, name)
		return
	}
	delete(r.ctors, canonical)
	for id, c := range r.ids {
		if c == canonical {
			delete(r.ids, id)
		}
	}
}

// Get returns a new codec for format.
func (r *Registry) Get(format string) (entry.Codec, error) {
	name := Normalize(format)

	r.mu.RLock()
	canonical, ok := r.ids[name]
	ctor := r.ctors[canonical]
	r.mu.RUnlock()

	if !ok || ctor == nil {
		return nil, &UnsupportedFormatError{Format: format, Supported: r.Formats()}
	}
	return ctor(), nil
}

// Canonical resolves an identifier or alias to the format it names.
func (r *Registry) Canonical(format string) (string, error) {
	r.mu.RLock()
	canonical, ok := r.ids[Normalize(format)]
	r.mu.RUnlock()
	if !ok {
		return "", &UnsupportedFormatError{Format: format, Supported: r.Formats()}
	}
	return canonical, nil
}

// Formats returns every registered identifier, aliases included, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Detect infers the canonical format of a file from its extension.
func (r *Registry) Detect(filename string) (string, error) {
	ext := Normalize(filepath.Ext(filename))
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUndetectableFormat, filename)
	}
	r.mu.RLock()
	canonical, ok := r.ids[ext]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown extension %q in %q", ErrUndetectableFormat, "."+ext, filename)
	}
	return canonical, nil
}

// Resolve picks the codec for a file: the declared format when given,
// otherwise the one detected from the file name.
func (r *Registry) Resolve(declared, filename string) (string, entry.Codec, error) {
	format := declared
	if Normalize(format) == "" {
		detected, err := r.Detect(filename)
		if err != nil {
			return "", nil, err
		}
		format = detected
	}
	canonical, err := r.Canonical(format)
	if err != nil {
		return "", nil, err
	}
	codec, err := r.Get(canonical)
	if err != nil {
		return "", nil, err
	}
	return canonical, codec, nil
}

// DetectFormat infers a format from a file name using the default registry.
func DetectFormat(filename string) (string, error) {
	return Default().Detect(filename)
}

var (
	contentMu    sync.RWMutex
	contentTypes = map[string]string{
		i18next.Format:     "application/json",
		pofile.Format:      "text/x-gettext-translation",
		stringsfile.Format: "text/plain",
		xliff.Format:       "application/xml",
	}
)

// SetContentType records the MIME type reported by ContentType for a
// canonical format.
func SetContentType(format, contentType string) {
	contentMu.Lock()
	defer contentMu.Unlock()
	contentTypes[Normalize(format)] = contentType
}

// ContentType returns the MIME type of exported documents in format.
// Aliases are accepted; unknown formats yield application/octet-stream.
func ContentType(format string) string {
	name := Normalize(format)
	if canonical, err := Default().Canonical(name); err == nil {
		name = canonical
	}
	contentMu.RLock()
	ct, ok := contentTypes[name]
	contentMu.RUnlock()
	if ok {
		return ct
	}
	return "application/octet-stream"
}

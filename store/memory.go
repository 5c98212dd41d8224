package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/tm"
	"github.com/minios-linux/locflow/versioning"
)

// Snapshot is the complete content of a MemoryStore.
type Snapshot struct {
	Projects     []Project                       `yaml:"projects"`
	Versions     []versioning.ResourceVersion    `yaml:"versions"`
	Strings      []versioning.TranslatableString `yaml:"strings"`
	Translations []Translation                   `yaml:"translations"`
}

// MemoryStore keeps everything in process memory. Transactions work on a
// copy of the state that replaces the original on success.
type MemoryStore struct {
	mu sync.RWMutex
	st *memState
	options
}

type memState struct {
	projects     map[string]*Project // by slug
	versions     []versioning.ResourceVersion
	strings      map[string]*versioning.TranslatableString // by id
	keys         map[string]string                         // project, key -> string id
	translations map[string]*Translation                   // string id, language -> translation
}

func newMemState() *memState {
	return &memState{
		projects:     make(map[string]*Project),
		strings:      make(map[string]*versioning.TranslatableString),
		keys:         make(map[string]string),
		translations: make(map[string]*Translation),
	}
}

func pair(a, b string) string { return a + "\x00" + b }

func (s *memState) clone() *memState {
	c := newMemState()
	for k, p := range s.projects {
		cp := *p
		c.projects[k] = &cp
	}
	c.versions = slices.Clone(s.versions)
	for k, str := range s.strings {
		cs := *str
		cs.PluralForms = maps.Clone(str.PluralForms)
		c.strings[k] = &cs
	}
	maps.Copy(c.keys, s.keys)
	for k, t := range s.translations {
		ct := *t
		ct.PluralForms = maps.Clone(t.PluralForms)
		c.translations[k] = &ct
	}
	return c
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{st: newMemState(), options: newOptions(opts)}
}

// Snapshot returns a copy of the store's content in a stable order.
func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	st := m.st.clone()
	m.mu.RUnlock()

	var snap Snapshot
	for _, p := range st.projects {
		snap.Projects = append(snap.Projects, *p)
	}
	slices.SortFunc(snap.Projects, func(a, b Project) int { return cmp.Compare(a.Slug, b.Slug) })

	snap.Versions = st.versions
	slices.SortStableFunc(snap.Versions, func(a, b versioning.ResourceVersion) int {
		return cmp.Or(cmp.Compare(a.Project, b.Project), cmp.Compare(a.FilePath, b.FilePath), cmp.Compare(a.VersionNumber, b.VersionNumber))
	})

	for _, s := range st.strings {
		snap.Strings = append(snap.Strings, *s)
	}
	slices.SortFunc(snap.Strings, func(a, b versioning.TranslatableString) int {
		return cmp.Or(cmp.Compare(a.Project, b.Project), cmp.Compare(a.Order, b.Order), cmp.Compare(a.Key, b.Key))
	})

	for _, t := range st.translations {
		snap.Translations = append(snap.Translations, *t)
	}
	slices.SortFunc(snap.Translations, func(a, b Translation) int {
		return cmp.Or(cmp.Compare(a.StringID, b.StringID), cmp.Compare(a.Language, b.Language))
	})
	return snap
}

// Restore replaces the store's content with snap.
func (m *MemoryStore) Restore(snap Snapshot) error {
	st := newMemState()
	for _, p := range snap.Projects {
		st.projects[p.Slug] = &p
	}
	st.versions = slices.Clone(snap.Versions)
	for _, s := range snap.Strings {
		if _, ok := st.projects[s.Project]; !ok {
			return fmt.Errorf("string %q references unknown project %q", s.Key, s.Project)
		}
		k := pair(s.Project, s.Key)
		if _, dup := st.keys[k]; dup {
			return fmt.Errorf("duplicate string %q in project %q", s.Key, s.Project)
		}
		st.strings[s.ID] = &s
		st.keys[k] = s.ID
	}
	for _, t := range snap.Translations {
		if _, ok := st.strings[t.StringID]; !ok {
			return fmt.Errorf("translation %s references unknown string %s", t.ID, t.StringID)
		}
		st.translations[pair(t.StringID, t.Language)] = &t
	}

	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// InTx implements versioning.Store. Transactions are fully serialized.
func (m *MemoryStore) InTx(ctx context.Context, project, filePath string, fn func(versioning.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if _, ok := work.projects[project]; !ok {
		work.projects[project] = m.newProject(project, "", "")
	}
	if err := fn(&memTx{st: work, project: project, filePath: filePath}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *MemoryStore) newProject(slug, name, sourceLanguage string) *Project {
	if sourceLanguage == "" {
		sourceLanguage = "en"
	}
	return &Project{
		ID:             uuid.NewString(),
		Slug:           slug,
		Name:           name,
		SourceLanguage: sourceLanguage,
		CreatedAt:      m.now().UTC(),
	}
}

// EnsureProject returns the project with slug, creating it if needed.
// Name and source language of an existing project are updated when given.
func (m *MemoryStore) EnsureProject(_ context.Context, slug, name, sourceLanguage string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.st.projects[slug]
	if !ok {
		p = m.newProject(slug, name, sourceLanguage)
		m.st.projects[slug] = p
		m.log.Debug().Str("project", slug).Msg("project created")
	} else {
		if name != "" {
			p.Name = name
		}
		if sourceLanguage != "" {
			p.SourceLanguage = sourceLanguage
		}
	}
	cp := *p
	return &cp, nil
}

// Project returns the project with slug.
func (m *MemoryStore) Project(_ context.Context, slug string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.st.projects[slug]
	if !ok {
		return nil, fmt.Errorf("project %q: %w", slug, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// StringByKey returns a project's string, active or not.
func (m *MemoryStore) StringByKey(_ context.Context, project, key string) (*versioning.TranslatableString, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.st.keys[pair(project, key)]
	if !ok {
		return nil, fmt.Errorf("string %q in project %q: %w", key, project, ErrNotFound)
	}
	s := *m.st.strings[id]
	s.PluralForms = maps.Clone(s.PluralForms)
	return &s, nil
}

// UpsertTranslation stores the translation of an active string.
func (m *MemoryStore) UpsertTranslation(_ context.Context, in TranslationInput) (*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.st.keys[pair(in.Project, in.Key)]
	if !ok || !m.st.strings[id].IsActive {
		return nil, fmt.Errorf("active string %q in project %q: %w", in.Key, in.Project, ErrNotFound)
	}
	status := in.Status
	if status == "" {
		status = tm.StatusDraft
	}

	now := m.now().UTC()
	t, ok := m.st.translations[pair(id, in.Language)]
	if !ok {
		t = &Translation{ID: uuid.NewString(), StringID: id, Language: in.Language, CreatedAt: now}
		m.st.translations[pair(id, in.Language)] = t
	}
	t.TranslatedText = in.Text
	t.PluralForms = cleanForms(in.PluralForms)
	t.Status = status
	t.UpdatedAt = now

	cp := *t
	cp.PluralForms = maps.Clone(t.PluralForms)
	return &cp, nil
}

// ActiveEntries returns a project's active strings as entries in order.
func (m *MemoryStore) ActiveEntries(_ context.Context, project string) ([]entry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := []entry.Entry{}
	for _, s := range m.st.strings {
		if s.Project == project && s.IsActive {
			entries = append(entries, s.Entry())
		}
	}
	slices.SortFunc(entries, func(a, b entry.Entry) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.Key, b.Key))
	})
	return entries, nil
}

// Translations implements Store.
func (m *MemoryStore) Translations(_ context.Context, project, language string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for _, s := range m.st.strings {
		if s.Project != project || !s.IsActive {
			continue
		}
		if t, ok := m.st.translations[pair(s.ID, language)]; ok {
			exportKeys(out, s.Key, t)
		}
	}
	return out, nil
}

// Versions lists a project's versions, optionally for one file, oldest first.
func (m *MemoryStore) Versions(_ context.Context, project, filePath string) ([]versioning.ResourceVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []versioning.ResourceVersion
	for _, v := range m.st.versions {
		if v.Project == project && (filePath == "" || v.FilePath == filePath) {
			out = append(out, v)
		}
	}
	slices.SortStableFunc(out, func(a, b versioning.ResourceVersion) int {
		return cmp.Or(cmp.Compare(a.FilePath, b.FilePath), cmp.Compare(a.VersionNumber, b.VersionNumber))
	})
	return out, nil
}

// Progress reports per-language counts over a project's active strings.
func (m *MemoryStore) Progress(_ context.Context, project string) ([]Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.st.projects[project]; !ok {
		return nil, fmt.Errorf("project %q: %w", project, ErrNotFound)
	}

	total := 0
	byLang := make(map[string]*Progress)
	for _, s := range m.st.strings {
		if s.Project != project || !s.IsActive {
			continue
		}
		total++
		for _, t := range m.st.translations {
			if t.StringID != s.ID {
				continue
			}
			p, ok := byLang[t.Language]
			if !ok {
				p = &Progress{Language: t.Language}
				byLang[t.Language] = p
			}
			if translated(t) {
				p.Translated++
				if t.Status == tm.StatusApproved {
					p.Approved++
				}
			}
		}
	}

	out := make([]Progress, 0, len(byLang))
	for _, p := range byLang {
		p.Total = total
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Progress) int { return cmp.Compare(a.Language, b.Language) })
	return out, nil
}

// Records implements tm.Corpus.
func (m *MemoryStore) Records(_ context.Context, f tm.Filter) ([]tm.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tm.Record
	for _, t := range m.st.translations {
		if f.Language != "" && t.Language != f.Language {
			continue
		}
		s := m.st.strings[t.StringID]
		if f.Project != "" && s.Project != f.Project {
			continue
		}
		var name string
		if p, ok := m.st.projects[s.Project]; ok {
			name = p.Name
		}
		out = append(out, tm.Record{
			StringID:       s.ID,
			Project:        s.Project,
			ProjectName:    name,
			Key:            s.Key,
			Language:       t.Language,
			SourceText:     s.SourceText,
			TranslatedText: t.TranslatedText,
			Status:         t.Status,
			IsActive:       s.IsActive,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Transaction
// ---------------------------------------------------------------------------

type memTx struct {
	st       *memState
	project  string
	filePath string
}

func (tx *memTx) VersionByChecksum(_ context.Context, checksum string) (*versioning.ResourceVersion, error) {
	for _, v := range tx.st.versions {
		if v.Project == tx.project && v.FilePath == tx.filePath && v.Checksum == checksum {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (tx *memTx) LatestVersion(context.Context) (int, error) {
	latest := 0
	for _, v := range tx.st.versions {
		if v.Project == tx.project && v.FilePath == tx.filePath && v.VersionNumber > latest {
			latest = v.VersionNumber
		}
	}
	return latest, nil
}

func (tx *memTx) CreateVersion(_ context.Context, v *versioning.ResourceVersion) error {
	for _, existing := range tx.st.versions {
		if existing.Project == v.Project && existing.FilePath == v.FilePath && existing.VersionNumber == v.VersionNumber {
			return fmt.Errorf("version %d of %s already exists", v.VersionNumber, v.FilePath)
		}
	}
	tx.st.versions = append(tx.st.versions, *v)
	return nil
}

func (tx *memTx) ActiveStrings(context.Context) ([]versioning.TranslatableString, error) {
	var out []versioning.TranslatableString
	for _, s := range tx.st.strings {
		if s.Project == tx.project && s.IsActive {
			cs := *s
			cs.PluralForms = maps.Clone(s.PluralForms)
			out = append(out, cs)
		}
	}
	slices.SortFunc(out, func(a, b versioning.TranslatableString) int { return cmp.Compare(a.Order, b.Order) })
	return out, nil
}

func (tx *memTx) CreateString(_ context.Context, s *versioning.TranslatableString) error {
	k := pair(s.Project, s.Key)
	if id, ok := tx.st.keys[k]; ok {
		if tx.st.strings[id].IsActive {
			return fmt.Errorf("string %q already exists", s.Key)
		}
		s.ID = id
	}
	cs := *s
	cs.PluralForms = maps.Clone(s.PluralForms)
	cs.IsActive = true
	tx.st.strings[cs.ID] = &cs
	tx.st.keys[k] = cs.ID
	return nil
}

func (tx *memTx) UpdateString(_ context.Context, s *versioning.TranslatableString) error {
	if _, ok := tx.st.strings[s.ID]; !ok {
		return fmt.Errorf("string %s: %w", s.ID, ErrNotFound)
	}
	cs := *s
	cs.PluralForms = maps.Clone(s.PluralForms)
	tx.st.strings[s.ID] = &cs
	return nil
}

func (tx *memTx) DeactivateStrings(_ context.Context, ids []string) error {
	for _, id := range ids {
		s, ok := tx.st.strings[id]
		if !ok {
			return fmt.Errorf("string %s: %w", id, ErrNotFound)
		}
		s.IsActive = false
	}
	return nil
}

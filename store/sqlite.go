package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/tm"
	"github.com/minios-linux/locflow/versioning"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

//go:embed migrations/*.sql
var migrations embed.FS

// connPragmas are applied to every pooled connection. _txlock makes
// BeginTx issue BEGIN IMMEDIATE so writers serialize at the start of a
// transaction instead of failing on lock upgrade.
var connPragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_txlock=immediate",
}

// SQLiteStore keeps data in a SQLite database.
type SQLiteStore struct {
	DB *sql.DB
	SQ sq.StatementBuilderType
	options
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	dsn := path + "?" + strings.Join(connPragmas, "&")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStore{DB: db, SQ: sq.StatementBuilder, options: newOptions(opts)}
	if err := Migrate(db, s.log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.DB.Close() }

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

// Migrate runs all pending database migrations.
func Migrate(db *sql.DB, log zerolog.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// gooseLogger sends goose output to zerolog at debug level.
type gooseLogger struct{ log zerolog.Logger }

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Debug().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatal().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

// ---------------------------------------------------------------------------
// Encoding helpers
// ---------------------------------------------------------------------------

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func encodeForms(forms map[string]string) string {
	if len(forms) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(forms) // map[string]string always marshals
	return string(b)
}

func decodeForms(s string) (map[string]string, error) {
	var forms map[string]string
	if err := json.Unmarshal([]byte(s), &forms); err != nil {
		return nil, fmt.Errorf("decoding plural forms: %w", err)
	}
	if len(forms) == 0 {
		return nil, nil
	}
	return forms, nil
}

// cleanForms drops empty plural translations.
func cleanForms(forms map[string]string) map[string]string {
	out := maps.Clone(forms)
	maps.DeleteFunc(out, func(_, v string) bool { return v == "" })
	if len(out) == 0 {
		return nil
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface{ Scan(dest ...any) error }

var stringColumns = []string{
	"s.id", "p.slug", "s.version_id", "s.string_key", "s.source_text", "s.context",
	"s.max_length", "s.has_plurals", "s.plural_forms", "s.sort_order", "s.is_active",
}

func scanString(row scanner) (*versioning.TranslatableString, error) {
	var (
		ts     versioning.TranslatableString
		forms  string
		plural int
		active int
	)
	if err := row.Scan(&ts.ID, &ts.Project, &ts.VersionID, &ts.Key, &ts.SourceText, &ts.Context,
		&ts.MaxLength, &plural, &forms, &ts.Order, &active); err != nil {
		return nil, err
	}
	var err error
	if ts.PluralForms, err = decodeForms(forms); err != nil {
		return nil, err
	}
	ts.HasPlurals = plural != 0
	ts.IsActive = active != 0
	return &ts, nil
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (s *SQLiteStore) ensureProject(ctx context.Context, q querier, slug, name, sourceLanguage string) (*Project, error) {
	lang := sourceLanguage
	if lang == "" {
		lang = "en"
	}
	ins := s.SQ.Insert("projects").
		Columns("id", "slug", "name", "source_language", "created_at").
		Values(uuid.NewString(), slug, name, lang, formatTime(s.now())).
		Suffix("ON CONFLICT(slug) DO NOTHING")
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return nil, err
	}
	res, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("creating project %q: %w", slug, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug().Str("project", slug).Msg("project created")
	} else if name != "" || sourceLanguage != "" {
		upd := s.SQ.Update("projects").Where(sq.Eq{"slug": slug})
		if name != "" {
			upd = upd.Set("name", name)
		}
		if sourceLanguage != "" {
			upd = upd.Set("source_language", sourceLanguage)
		}
		sqlStr, args, err := upd.ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := q.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, fmt.Errorf("updating project %q: %w", slug, err)
		}
	}
	return s.project(ctx, q, slug)
}

func (s *SQLiteStore) project(ctx context.Context, q querier, slug string) (*Project, error) {
	sel := s.SQ.Select("id", "slug", "name", "source_language", "created_at").
		From("projects").Where(sq.Eq{"slug": slug})
	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	var (
		p       Project
		created string
	)
	err = q.QueryRowContext(ctx, sqlStr, args...).Scan(&p.ID, &p.Slug, &p.Name, &p.SourceLanguage, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

// EnsureProject returns the project with slug, creating it if needed.
// Name and source language of an existing project are updated when given.
func (s *SQLiteStore) EnsureProject(ctx context.Context, slug, name, sourceLanguage string) (*Project, error) {
	return s.ensureProject(ctx, s.DB, slug, name, sourceLanguage)
}

// Project returns the project with slug.
func (s *SQLiteStore) Project(ctx context.Context, slug string) (*Project, error) {
	return s.project(ctx, s.DB, slug)
}

// ---------------------------------------------------------------------------
// Strings and translations
// ---------------------------------------------------------------------------

func (s *SQLiteStore) selectStrings() sq.SelectBuilder {
	return s.SQ.Select(stringColumns...).From("strings s").Join("projects p ON p.id = s.project_id")
}

// StringByKey returns a project's string, active or not.
func (s *SQLiteStore) StringByKey(ctx context.Context, project, key string) (*versioning.TranslatableString, error) {
	sqlStr, args, err := s.selectStrings().Where(sq.Eq{"p.slug": project, "s.string_key": key}).ToSql()
	if err != nil {
		return nil, err
	}
	ts, err := scanString(s.DB.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("string %q in project %q: %w", key, project, ErrNotFound)
	}
	return ts, err
}

// UpsertTranslation stores the translation of an active string.
func (s *SQLiteStore) UpsertTranslation(ctx context.Context, in TranslationInput) (*Translation, error) {
	str, err := s.StringByKey(ctx, in.Project, in.Key)
	if err != nil {
		return nil, err
	}
	if !str.IsActive {
		return nil, fmt.Errorf("active string %q in project %q: %w", in.Key, in.Project, ErrNotFound)
	}
	status := in.Status
	if status == "" {
		status = tm.StatusDraft
	}

	now := formatTime(s.now())
	ins := s.SQ.Insert("translations").
		Columns("id", "string_id", "language_code", "translated_text", "plural_forms", "status", "created_at", "updated_at").
		Values(uuid.NewString(), str.ID, in.Language, in.Text, encodeForms(cleanForms(in.PluralForms)), string(status), now, now).
		Suffix("ON CONFLICT(string_id, language_code) DO UPDATE SET translated_text=excluded.translated_text, plural_forms=excluded.plural_forms, status=excluded.status, updated_at=excluded.updated_at")
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("saving translation of %q: %w", in.Key, err)
	}

	sel := s.SQ.Select("id", "string_id", "language_code", "translated_text", "plural_forms", "status", "created_at", "updated_at").
		From("translations").Where(sq.Eq{"string_id": str.ID, "language_code": in.Language})
	sqlStr, args, err = sel.ToSql()
	if err != nil {
		return nil, err
	}
	var (
		t                 Translation
		forms, statusText string
		created, updated  string
	)
	if err := s.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&t.ID, &t.StringID, &t.Language, &t.TranslatedText, &forms, &statusText, &created, &updated); err != nil {
		return nil, err
	}
	if t.PluralForms, err = decodeForms(forms); err != nil {
		return nil, err
	}
	t.Status = tm.Status(statusText)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

// ActiveEntries returns a project's active strings as entries in order.
func (s *SQLiteStore) ActiveEntries(ctx context.Context, project string) ([]entry.Entry, error) {
	sqlStr, args, err := s.selectStrings().
		Where(sq.Eq{"p.slug": project, "s.is_active": 1}).
		OrderBy("s.sort_order", "s.string_key").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []entry.Entry{}
	for rows.Next() {
		ts, err := scanString(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ts.Entry())
	}
	return entries, rows.Err()
}

// Translations implements Store.
func (s *SQLiteStore) Translations(ctx context.Context, project, language string) (map[string]string, error) {
	sqlStr, args, err := s.SQ.Select("s.string_key", "t.translated_text", "t.plural_forms").
		From("translations t").
		Join("strings s ON s.id = t.string_id").
		Join("projects p ON p.id = s.project_id").
		Where(sq.Eq{"p.slug": project, "s.is_active": 1, "t.language_code": language}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, forms string
		var t Translation
		if err := rows.Scan(&key, &t.TranslatedText, &forms); err != nil {
			return nil, err
		}
		if t.PluralForms, err = decodeForms(forms); err != nil {
			return nil, err
		}
		exportKeys(out, key, &t)
	}
	return out, rows.Err()
}

// Versions lists a project's versions, optionally for one file, oldest first.
func (s *SQLiteStore) Versions(ctx context.Context, project, filePath string) ([]versioning.ResourceVersion, error) {
	where := sq.Eq{"p.slug": project}
	if filePath != "" {
		where["v.file_path"] = filePath
	}
	sqlStr, args, err := s.SQ.Select("v.id", "p.slug", "v.file_path", "v.version", "v.file_format", "v.checksum", "v.created_at").
		From("resource_versions v").
		Join("projects p ON p.id = v.project_id").
		Where(where).
		OrderBy("v.file_path", "v.version").ToSql()
	if err != nil {
		return nil, err
	}
	return queryVersions(ctx, s.DB, sqlStr, args)
}

func queryVersions(ctx context.Context, q querier, sqlStr string, args []any) ([]versioning.ResourceVersion, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []versioning.ResourceVersion
	for rows.Next() {
		var (
			v       versioning.ResourceVersion
			created string
		)
		if err := rows.Scan(&v.ID, &v.Project, &v.FilePath, &v.VersionNumber, &v.FileFormat, &v.Checksum, &created); err != nil {
			return nil, err
		}
		v.CreatedAt = parseTime(created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Progress reports per-language counts over a project's active strings.
func (s *SQLiteStore) Progress(ctx context.Context, project string) ([]Progress, error) {
	p, err := s.project(ctx, s.DB, project)
	if err != nil {
		return nil, err
	}

	sqlStr, args, err := s.SQ.Select("COUNT(*)").From("strings").
		Where(sq.Eq{"project_id": p.ID, "is_active": 1}).ToSql()
	if err != nil {
		return nil, err
	}
	var total int
	if err := s.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, err
	}

	const isTranslated = "(t.translated_text != '' OR t.plural_forms != '{}')"
	sqlStr, args, err = s.SQ.Select(
		"t.language_code",
		"SUM(CASE WHEN "+isTranslated+" THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN "+isTranslated+" AND t.status = 'approved' THEN 1 ELSE 0 END)",
	).
		From("translations t").
		Join("strings s ON s.id = t.string_id").
		Where(sq.Eq{"s.project_id": p.ID, "s.is_active": 1}).
		GroupBy("t.language_code").
		OrderBy("t.language_code").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Progress{}
	for rows.Next() {
		pr := Progress{Total: total}
		if err := rows.Scan(&pr.Language, &pr.Translated, &pr.Approved); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// Records implements tm.Corpus. Only approved translations of active
// strings are read.
func (s *SQLiteStore) Records(ctx context.Context, f tm.Filter) ([]tm.Record, error) {
	where := sq.Eq{"t.status": string(tm.StatusApproved), "s.is_active": 1}
	if f.Project != "" {
		where["p.slug"] = f.Project
	}
	if f.Language != "" {
		where["t.language_code"] = f.Language
	}
	sqlStr, args, err := s.SQ.Select(
		"s.id", "p.slug", "p.name", "s.string_key", "t.language_code",
		"s.source_text", "t.translated_text", "t.status", "s.is_active",
	).
		From("translations t").
		Join("strings s ON s.id = t.string_id").
		Join("projects p ON p.id = s.project_id").
		Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tm.Record
	for rows.Next() {
		var (
			r      tm.Record
			status string
			active int
		)
		if err := rows.Scan(&r.StringID, &r.Project, &r.ProjectName, &r.Key, &r.Language,
			&r.SourceText, &r.TranslatedText, &status, &active); err != nil {
			return nil, err
		}
		r.Status = tm.Status(status)
		r.IsActive = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Transaction
// ---------------------------------------------------------------------------

// InTx implements versioning.Store. The transaction starts with BEGIN
// IMMEDIATE, so concurrent uploads wait for each other.
func (s *SQLiteStore) InTx(ctx context.Context, project, filePath string, fn func(versioning.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.ensureProject(ctx, tx, project, "", "")
	if err != nil {
		return err
	}
	if err := fn(&sqlTx{store: s, tx: tx, project: p, filePath: filePath}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	store    *SQLiteStore
	tx       *sql.Tx
	project  *Project
	filePath string
}

func (t *sqlTx) exec(ctx context.Context, b sq.Sqlizer) error {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, sqlStr, args...)
	return err
}

func (t *sqlTx) VersionByChecksum(ctx context.Context, checksum string) (*versioning.ResourceVersion, error) {
	sqlStr, args, err := t.store.SQ.Select("v.id", "p.slug", "v.file_path", "v.version", "v.file_format", "v.checksum", "v.created_at").
		From("resource_versions v").
		Join("projects p ON p.id = v.project_id").
		Where(sq.Eq{"v.project_id": t.project.ID, "v.file_path": t.filePath, "v.checksum": checksum}).
		OrderBy("v.version").Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	versions, err := queryVersions(ctx, t.tx, sqlStr, args)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return &versions[0], nil
}

func (t *sqlTx) LatestVersion(ctx context.Context) (int, error) {
	sqlStr, args, err := t.store.SQ.Select("COALESCE(MAX(version), 0)").From("resource_versions").
		Where(sq.Eq{"project_id": t.project.ID, "file_path": t.filePath}).ToSql()
	if err != nil {
		return 0, err
	}
	var latest int
	err = t.tx.QueryRowContext(ctx, sqlStr, args...).Scan(&latest)
	return latest, err
}

func (t *sqlTx) CreateVersion(ctx context.Context, v *versioning.ResourceVersion) error {
	return t.exec(ctx, t.store.SQ.Insert("resource_versions").
		Columns("id", "project_id", "file_path", "version", "file_format", "checksum", "created_at").
		Values(v.ID, t.project.ID, v.FilePath, v.VersionNumber, v.FileFormat, v.Checksum, formatTime(v.CreatedAt)))
}

func (t *sqlTx) ActiveStrings(ctx context.Context) ([]versioning.TranslatableString, error) {
	sqlStr, args, err := t.store.selectStrings().
		Where(sq.Eq{"s.project_id": t.project.ID, "s.is_active": 1}).
		OrderBy("s.sort_order").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []versioning.TranslatableString
	for rows.Next() {
		ts, err := scanString(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ts)
	}
	return out, rows.Err()
}

func (t *sqlTx) CreateString(ctx context.Context, s *versioning.TranslatableString) error {
	sqlStr, args, err := t.store.SQ.Select("id", "is_active").From("strings").
		Where(sq.Eq{"project_id": t.project.ID, "string_key": s.Key}).ToSql()
	if err != nil {
		return err
	}
	var (
		existingID string
		active     int
	)
	err = t.tx.QueryRowContext(ctx, sqlStr, args...).Scan(&existingID, &active)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := formatTime(t.store.now())
		return t.exec(ctx, t.store.SQ.Insert("strings").
			Columns("id", "project_id", "version_id", "string_key", "source_text", "context",
				"max_length", "has_plurals", "plural_forms", "sort_order", "is_active", "created_at", "updated_at").
			Values(s.ID, t.project.ID, s.VersionID, s.Key, s.SourceText, s.Context,
				s.MaxLength, boolInt(s.HasPlurals), encodeForms(s.PluralForms), s.Order, 1, now, now))
	case err != nil:
		return err
	case active != 0:
		return fmt.Errorf("string %q already exists", s.Key)
	}

	s.ID = existingID
	s.IsActive = true
	return t.UpdateString(ctx, s)
}

func (t *sqlTx) UpdateString(ctx context.Context, s *versioning.TranslatableString) error {
	return t.exec(ctx, t.store.SQ.Update("strings").
		Set("version_id", s.VersionID).
		Set("source_text", s.SourceText).
		Set("context", s.Context).
		Set("max_length", s.MaxLength).
		Set("has_plurals", boolInt(s.HasPlurals)).
		Set("plural_forms", encodeForms(s.PluralForms)).
		Set("sort_order", s.Order).
		Set("is_active", boolInt(s.IsActive)).
		Set("updated_at", formatTime(t.store.now())).
		Where(sq.Eq{"id": s.ID}))
}

func (t *sqlTx) DeactivateStrings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return t.exec(ctx, t.store.SQ.Update("strings").
		Set("is_active", 0).
		Set("updated_at", formatTime(t.store.now())).
		Where(sq.Eq{"id": ids}))
}

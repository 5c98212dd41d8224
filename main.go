// locflow manages localization resources: it converts resource files between
// formats, versions uploaded source files, validates translations and
// suggests translations from memory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/locflow/android"
	"github.com/minios-linux/locflow/arbfile"
	"github.com/minios-linux/locflow/config"
	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/i18n"
	"github.com/minios-linux/locflow/lockfile"
	"github.com/minios-linux/locflow/pofile"
	"github.com/minios-linux/locflow/propfile"
	"github.com/minios-linux/locflow/registry"
	"github.com/minios-linux/locflow/store"
	"github.com/minios-linux/locflow/tm"
	"github.com/minios-linux/locflow/validate"
	"github.com/minios-linux/locflow/versioning"
	"github.com/minios-linux/locflow/xliff"
	"github.com/minios-linux/locflow/yamlfile"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
)

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

// app carries global flags and what the root pre-run prepares for
// subcommands.
type app struct {
	rootDir    string
	configPath string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger

	out    io.Writer
	errOut io.Writer
	color  bool
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// newLogger returns a console logger on w, colored only on a terminal.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: !isTerminal(w), TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		path = filepath.Join(a.rootDir, config.FileName)
	}
	cfg, err := config.LoadFile(path, nil)
	if err != nil {
		return err
	}
	level := cfg.LogLevel()
	if a.verbose {
		level = zerolog.DebugLevel
	}
	a.cfg = cfg
	a.log = newLogger(a.errOut, level)
	a.log.Debug().Str("config", cfg.Path()).Str("storage", cfg.Storage.Driver).Msg("config loaded")
	return nil
}

// ---------------------------------------------------------------------------
// Storage backends
// ---------------------------------------------------------------------------

// backend is an open store. Lockfile-backed stores are written back by save.
type backend struct {
	store.Store
	lock *lockfile.LockFile
	mem  *store.MemoryStore
}

func (a *app) openStore() (*backend, error) {
	opts := []store.Option{store.WithLogger(a.log)}
	switch a.cfg.Storage.Driver {
	case config.DriverLockfile:
		lf, err := lockfile.Acquire(a.cfg.Storage.StateDir)
		if err != nil {
			return nil, err
		}
		ms, err := lf.Open(opts...)
		if err != nil {
			lf.Close()
			return nil, err
		}
		a.log.Debug().Str("path", lf.Path()).Str("contents", lf.Summary()).Msg("lock file loaded")
		return &backend{Store: ms, lock: lf, mem: ms}, nil
	default:
		s, err := store.OpenSQLite(a.cfg.Storage.DBPath, opts...)
		if err != nil {
			return nil, err
		}
		return &backend{Store: s}, nil
	}
}

// Close closes the store and releases the lock file.
func (b *backend) Close() error {
	err := b.Store.Close()
	if b.lock != nil {
		if lerr := b.lock.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

// save persists lockfile state; SQLite commits per operation.
func (b *backend) save() error {
	if b.lock == nil {
		return nil
	}
	b.lock.Capture(b.mem)
	return b.lock.Save()
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

var registerOnce sync.Once

// registerFormats adds the CLI's extra codecs to the default registry.
func registerFormats() {
	registerOnce.Do(func() {
		reg := registry.Default()
		reg.Register(yamlfile.Format, yamlfile.New, "yml")
		reg.Register(propfile.Format, propfile.New)
		reg.Register(arbfile.Format, arbfile.New)
		reg.Register(android.Format, android.New)
		registry.SetContentType(yamlfile.Format, "application/yaml")
		registry.SetContentType(propfile.Format, "text/x-java-properties")
		registry.SetContentType(arbfile.Format, "application/json")
		registry.SetContentType(android.Format, "application/xml")
	})
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	registerFormats()
	a := &app{out: stdout, errOut: stderr, color: isTerminal(stdout), log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "locflow",
		Short: i18n.T("Localization resource manager"),
		Long: `locflow converts localization files between formats, keeps a versioned
history of source files, validates translations and suggests translations
from memory.

Formats:
  json        i18next JSON (nested keys, _one/_other plural suffixes)
  po          gettext PO/POT
  strings     Apple .strings
  xliff       XLIFF 1.2
  yaml        nested YAML (Rails locale root and plural maps supported)
  properties  Java .properties
  arb         Flutter ARB
  android     Android strings.xml (use --format android)

Storage is a SQLite database (default) or a locflow.lock snapshot, selected
with storage.driver in .locflow.yaml or LOCFLOW_STORAGE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&a.rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default <root>/"+config.FileName+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newFormatsCmd(a),
		newParseCmd(a),
		newConvertCmd(a),
		newCheckCmd(a),
		newUploadCmd(a),
		newSubmitCmd(a),
		newPullCmd(a),
		newSuggestCmd(a),
		newValidateCmd(a),
		newProgressCmd(a),
		newHistoryCmd(a),
		newVersionCmd(a),
	)

	return root
}

func main() {
	i18n.Init("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		log := newLogger(os.Stderr, zerolog.InfoLevel)
		log.Error().Msg(err.Error())
		stop()
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Shared flags
// ---------------------------------------------------------------------------

func addFormatFlag(fs *pflag.FlagSet, p *string, name, usage string) {
	fs.StringVar(p, name, "", usage+" ("+strings.Join(registry.Default().Formats(), ", ")+"; default: from file extension)")
}

func addProjectFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVarP(p, "project", "p", "", "Project slug")
	_ = cmd.MarkFlagRequired("project")
}

func addPluralFlag(fs *pflag.FlagSet, p *map[string]string) {
	fs.StringToStringVar(p, "plural", nil, "Plural forms as category=text (repeatable, e.g. one=...,other=...)")
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Long:  `Display version, commit hash, and build date.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "locflow version %s\n", version)
			fmt.Fprintf(a.out, "  commit:    %s\n", commit)
			fmt.Fprintf(a.out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// formats (list registered codecs)
// ---------------------------------------------------------------------------

func newFormatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: i18n.T("List supported file formats"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Default()
			for _, name := range reg.Formats() {
				canonical, err := reg.Canonical(name)
				if err != nil {
					return err
				}
				alias := ""
				if canonical != name {
					alias = "-> " + canonical
				}
				fmt.Fprintf(a.out, "%-11s %-14s %s\n", name, alias, registry.ContentType(canonical))
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// parse (print the entries of a file)
// ---------------------------------------------------------------------------

func newParseCmd(a *app) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: i18n.T("Print the entries of a resource file"),
		Long: `Parse a resource file and print its entries.

Examples:
  locflow parse locales/en.json
  locflow parse --output yaml po/messages.pot
  locflow parse --format strings --output json Base.lproj/Localizable.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, _, err := readEntries(args[0], format)
			if err != nil {
				return err
			}
			return a.printEntries(entries, output)
		},
	}

	addFormatFlag(cmd.Flags(), &format, "format", "Input format")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output: table, yaml or json")

	return cmd
}

// readEntries parses path with the declared or detected codec.
func readEntries(path, format string) ([]entry.Entry, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	canonical, codec, err := registry.Default().Resolve(format, path)
	if err != nil {
		return nil, "", err
	}
	entries, err := codec.Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return entries, canonical, nil
}

func (a *app) printEntries(entries []entry.Entry, output string) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if entries == nil {
			entries = []entry.Entry{}
		}
		return enc.Encode(entries)
	case "table", "":
		width := 0
		for _, e := range entries {
			width = max(width, len(displayKey(e.Key)))
		}
		for _, e := range entries {
			marker := " "
			if e.HasPlurals {
				marker = "*"
			}
			fmt.Fprintf(a.out, "%s %-*s  %s\n", marker, width, displayKey(e.Key), oneLine(e.SourceText))
		}
		fmt.Fprintf(a.out, i18n.N("%d entry", "%d entries", len(entries))+"\n", len(entries))
		return nil
	default:
		return fmt.Errorf("unknown output %q (want table, yaml or json)", output)
	}
}

// displayKey shows a PO context separator as "|".
func displayKey(key string) string {
	ctx, id := pofile.SplitKey(key)
	if ctx == "" {
		return id
	}
	return ctx + "|" + id
}

// oneLine shortens text for table cells.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if r := []rune(s); len(r) > 60 {
		return string(r[:59]) + "…"
	}
	return s
}

// ---------------------------------------------------------------------------
// convert (re-export a file in another format)
// ---------------------------------------------------------------------------

func newConvertCmd(a *app) *cobra.Command {
	var from, to, lang string

	cmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT",
		Short: i18n.T("Convert a resource file to another format"),
		Long: `Convert a resource file to another format. OUTPUT "-" writes to stdout.

Examples:
  locflow convert locales/en.json messages.xliff
  locflow convert --to po Localizable.strings -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, fromFormat, err := readEntries(args[0], from)
			if err != nil {
				return err
			}
			toFormat, codec, err := registry.Default().Resolve(to, args[1])
			if err != nil {
				return err
			}
			configureCodec(codec, a.cfg.SourceLang, lang)
			data, err := codec.Export(entries, nil)
			if err != nil {
				return err
			}
			if err := writeOutput(args[1], data, a.out); err != nil {
				return err
			}
			a.log.Info().Str("from", fromFormat).Str("to", toFormat).Int("entries", len(entries)).Msg("converted")
			return nil
		},
	}

	addFormatFlag(cmd.Flags(), &from, "from", "Input format")
	addFormatFlag(cmd.Flags(), &to, "to", "Output format")
	cmd.Flags().StringVar(&lang, "lang", "", "Target language written to PO and XLIFF headers")

	return cmd
}

// configureCodec sets language metadata on codecs that carry it.
func configureCodec(c entry.Codec, source, target string) {
	switch c := c.(type) {
	case *pofile.Codec:
		c.Language = target
	case *xliff.Codec:
		c.SourceLanguage = source
		c.TargetLanguage = target
	case *arbfile.Codec:
		c.Locale = target
	}
}

// writeOutput writes data to path, or to stdout for "" and "-".
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ---------------------------------------------------------------------------
// check (round-trip files through their codec)
// ---------------------------------------------------------------------------

func newCheckCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: i18n.T("Verify that files survive an export round trip"),
		Long: `Parse each file, export it, and parse the export again. Keys, source
texts and contexts must survive unchanged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := roundTrip(path, format); err != nil {
					failed++
					fmt.Fprintf(a.out, "%s %s: %v\n", a.paint(colorRed, "FAIL"), path, err)
					continue
				}
				fmt.Fprintf(a.out, "%s %s\n", a.paint(colorGreen, "OK"), path)
			}
			if failed > 0 {
				return fmt.Errorf(i18n.N("%d file failed the round trip", "%d files failed the round trip", failed), failed)
			}
			return nil
		},
	}

	addFormatFlag(cmd.Flags(), &format, "format", "Input format")

	return cmd
}

func roundTrip(path, format string) error {
	first, canonical, err := readEntries(path, format)
	if err != nil {
		return err
	}
	codec, err := registry.Default().Get(canonical)
	if err != nil {
		return err
	}
	out, err := codec.Export(first, nil)
	if err != nil {
		return err
	}
	second, err := codec.Parse(out)
	if err != nil {
		return fmt.Errorf("re-parse: %w", err)
	}
	if len(first) != len(second) {
		return fmt.Errorf("entry count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		x, y := first[i], second[i]
		if x.Key != y.Key || x.SourceText != y.SourceText || x.Context != y.Context {
			return fmt.Errorf("entry %q changed", displayKey(x.Key))
		}
	}
	return nil
}

func (a *app) paint(color, s string) string {
	if !a.color {
		return s
	}
	return color + s + colorReset
}

// ---------------------------------------------------------------------------
// upload (ingest a new revision of a source file)
// ---------------------------------------------------------------------------

func newUploadCmd(a *app) *cobra.Command {
	var project, name, path, format string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: i18n.T("Upload a new revision of a source file"),
		Long: `Upload a source resource file. New keys become strings, changed keys are
updated and keys missing from the file are deactivated. Uploading content
identical to an earlier revision of the same file changes nothing.

Examples:
  locflow upload -p web locales/en.json
  locflow upload -p web --path app/en.json build/en.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if path == "" {
				path = a.logicalPath(args[0])
			}

			b, err := a.openStore()
			if err != nil {
				return err
			}
			defer b.Close()

			if _, err := b.EnsureProject(ctx, project, name, a.cfg.SourceLang); err != nil {
				return err
			}
			engine := versioning.NewEngine(b, versioning.WithLogger(a.log))
			res, err := engine.ApplyUpload(ctx, versioning.UploadRequest{
				Project:  project,
				FilePath: path,
				Content:  content,
				Format:   format,
			})
			if err != nil {
				return err
			}
			if err := b.save(); err != nil {
				return err
			}

			if res.Status == versioning.StatusUnchanged {
				fmt.Fprintf(a.out, i18n.T("%s: unchanged (version %d)")+"\n", path, res.VersionNumber)
				return nil
			}
			fmt.Fprintf(a.out, i18n.T("%s: version %d, %d new, %d updated, %d removed")+"\n",
				path, res.VersionNumber, res.New, res.Updated, res.Removed)
			return nil
		},
	}

	addProjectFlag(cmd, &project)
	cmd.Flags().StringVar(&name, "name", "", "Project display name (used when the project is created)")
	cmd.Flags().StringVar(&path, "path", "", "Logical file path (default: FILE relative to --root)")
	addFormatFlag(cmd.Flags(), &format, "format", "Input format")

	return cmd
}

// logicalPath names an uploaded file relative to the project root.
func (a *app) logicalPath(file string) string {
	absRoot, err1 := filepath.Abs(a.rootDir)
	absFile, err2 := filepath.Abs(file)
	if err1 == nil && err2 == nil {
		if rel, err := filepath.Rel(absRoot, absFile); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(file))
}

// ---------------------------------------------------------------------------
// submit (store a validated translation)
// ---------------------------------------------------------------------------

func newSubmitCmd(a *app) *cobra.Command {
	var (
		project string
		lang    string
		status  string
		plurals map[string]string
	)

	cmd := &cobra.Command{
		Use:   "submit KEY [TEXT]",
		Short: i18n.T("Submit a translation for a string"),
		Long: `Validate and store a translation. Placeholders must match the source text,
the translation must fit the string's max length and plural strings must
provide every form the language requires. Invalid translations are refused.

Examples:
  locflow submit -p web --lang de common.ok "OK"
  locflow submit -p web --lang ru --plural one="%d файл",few="%d файла",many="%d файлов",other="%d файла" files`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := args[0]
			var text string
			if len(args) == 2 {
				text = args[1]
			}
			if text == "" && len(plurals) == 0 {
				return errors.New(i18n.T("nothing to submit: give TEXT or --plural"))
			}
			st, err := tm.ParseStatus(status)
			if err != nil {
				return err
			}

			b, err := a.openStore()
			if err != nil {
				return err
			}
			defer b.Close()

			s, err := b.StringByKey(ctx, project, key)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", project, key, err)
			}

			problems := validate.Translation(validate.Input{
				SourceText:         s.SourceText,
				Translation:        representative(text, plurals),
				MaxLength:          s.MaxLength,
				HasPlurals:         s.HasPlurals,
				PluralTranslations: plurals,
				Language:           lang,
			})
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintf(a.errOut, "  - %s\n", p)
				}
				return fmt.Errorf(i18n.N("translation rejected: %d problem", "translation rejected: %d problems", len(problems)), len(problems))
			}

			t, err := b.UpsertTranslation(ctx, store.TranslationInput{
				Project:     project,
				Key:         key,
				Language:    lang,
				Text:        text,
				PluralForms: plurals,
				Status:      st,
			})
			if err != nil {
				return err
			}
			if err := b.save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, i18n.T("%s [%s]: saved as %s")+"\n", key, lang, t.Status)
			return nil
		},
	}

	addProjectFlag(cmd, &project)
	cmd.Flags().StringVar(&lang, "lang", "", "Target language (required)")
	_ = cmd.MarkFlagRequired("lang")
	cmd.Flags().StringVar(&status, "status", string(tm.StatusDraft), "Status: draft, review or approved")
	addPluralFlag(cmd.Flags(), &plurals)

	return cmd
}

// representative picks the text checked for placeholders: TEXT, or the
// "other" plural form, or the first form in CLDR order.
func representative(text string, plurals map[string]string) string {
	if text != "" || len(plurals) == 0 {
		return text
	}
	if other, ok := plurals["other"]; ok {
		return other
	}
	forms := make([]string, 0, len(plurals))
	for form := range plurals {
		forms = append(forms, form)
	}
	slices.Sort(forms)
	return plurals[forms[0]]
}

// ---------------------------------------------------------------------------
// pull (export a project's strings with translations)
// ---------------------------------------------------------------------------

func newPullCmd(a *app) *cobra.Command {
	var project, lang, format, output string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: i18n.T("Export a project's strings and translations"),
		Long: `Export the active strings of a project. With --lang, translations for that
language are included; untranslated strings fall back per format.

Examples:
  locflow pull -p web --lang de -o locales/de.json
  locflow pull -p web --lang fr --format xliff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if format == "" && (output == "" || output == "-") {
				return errors.New(i18n.T("--format is required when writing to stdout"))
			}
			canonical, codec, err := registry.Default().Resolve(format, output)
			if err != nil {
				return err
			}

			b, err := a.openStore()
			if err != nil {
				return err
			}
			defer b.Close()

			proj, err := b.Project(ctx, project)
			if err != nil {
				return fmt.Errorf("project %s: %w", project, err)
			}
			entries, err := b.ActiveEntries(ctx, project)
			if err != nil {
				return err
			}
			var translations map[string]string
			if lang != "" {
				if translations, err = b.Translations(ctx, project, lang); err != nil {
					return err
				}
			}

			configureCodec(codec, proj.SourceLanguage, lang)
			data, err := codec.Export(entries, translations)
			if err != nil {
				return err
			}
			if err := writeOutput(output, data, a.out); err != nil {
				return err
			}
			a.log.Info().Str("project", project).Str("lang", lang).Str("format", canonical).
				Int("strings", len(entries)).Int("translations", len(translations)).Msg("exported")
			return nil
		},
	}

	addProjectFlag(cmd, &project)
	cmd.Flags().StringVar(&lang, "lang", "", "Language whose translations are included")
	addFormatFlag(cmd.Flags(), &format, "format", "Output format")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")

	return cmd
}

// ---------------------------------------------------------------------------
// suggest (translation memory lookup)
// ---------------------------------------------------------------------------

func newSuggestCmd(a *app) *cobra.Command {
	var (
		lang     string
		project  string
		exclude  string
		strategy string
		minSim   float64
		maxRes   int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "suggest TEXT",
		Short: i18n.T("Suggest translations from memory"),
		Long: `Rank approved translations of similar source texts.

Examples:
  locflow suggest --lang de "Save file"
  locflow suggest --lang de --min 0.5 --max 3 --project web "Save file"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := append(a.cfg.TMOptions(), tm.WithLogger(a.log))
			if strategy != "" {
				st, err := tm.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				opts = append(opts, tm.WithStrategy(st))
			}
			var query []tm.QueryOption
			if cmd.Flags().Changed("min") {
				query = append(query, tm.MinSimilarity(minSim))
			}
			if cmd.Flags().Changed("max") {
				query = append(query, tm.MaxResults(maxRes))
			}
			if project != "" {
				query = append(query, tm.InProject(project))
			}
			if exclude != "" {
				query = append(query, tm.ExcludeString(exclude))
			}

			b, err := a.openStore()
			if err != nil {
				return err
			}
			defer b.Close()

			suggestions, err := tm.NewEngine(b, opts...).Suggest(ctx, args[0], lang, query...)
			if err != nil {
				return err
			}

			if asJSON {
				if suggestions == nil {
					suggestions = []tm.Suggestion{}
				}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(suggestions)
			}
			if len(suggestions) == 0 {
				fmt.Fprintln(a.out, i18n.T("No suggestions"))
				return nil
			}
			for _, s := range suggestions {
				fmt.Fprintf(a.out, "%3.0f%%  %s/%s\n      %s\n      %s\n",
					100*s.Similarity, s.Project, displayKey(s.Key), oneLine(s.SourceText), a.paint(colorGreen, oneLine(s.TranslatedText)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Target language (required)")
	_ = cmd.MarkFlagRequired("lang")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only search this project")
	cmd.Flags().StringVar(&exclude, "exclude", "", "String ID to leave out")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Similarity: auto, ratio or trigram (default from config)")
	cmd.Flags().Float64Var(&minSim, "min", tm.DefaultMinSimilarity, "Minimum similarity 0..1 (default from config)")
	cmd.Flags().IntVar(&maxRes, "max", tm.DefaultMaxResults, "Maximum number of suggestions (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

// ---------------------------------------------------------------------------
// validate (check a translation without storing it)
// ---------------------------------------------------------------------------

func newValidateCmd(a *app) *cobra.Command {
	var (
		maxLength int
		lang      string
		plurals   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "validate SOURCE TRANSLATION",
		Short: i18n.T("Check a translation against its source text"),
		Long: `Check placeholders, length and plural forms of a translation.

Examples:
  locflow validate "Hello {{name}}" "Hallo {{name}}"
  locflow validate --max-length 10 "Save" "Speichern unter"
  locflow validate --lang ru --plural one=файл,few=файла,many=файлов,other=файла "%d files" ""`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems := validate.Translation(validate.Input{
				SourceText:         args[0],
				Translation:        representative(args[1], plurals),
				MaxLength:          maxLength,
				HasPlurals:         len(plurals) > 0,
				PluralTranslations: plurals,
				Language:           lang,
			})
			if len(problems) == 0 {
				fmt.Fprintln(a.out, a.paint(colorGreen, "OK"))
				return nil
			}
			for _, p := range problems {
				fmt.Fprintf(a.out, "%s %s\n", a.paint(colorRed, "-"), p)
			}
			return fmt.Errorf(i18n.N("%d problem found", "%d problems found", len(problems)), len(problems))
		},
	}

	cmd.Flags().IntVar(&maxLength, "max-length", 0, "Maximum length in characters (0 = unlimited)")
	cmd.Flags().StringVar(&lang, "lang", "", "Target language, enables the plural check")
	addPluralFlag(cmd.Flags(), &plurals)

	return cmd
}

// ---------------------------------------------------------------------------
// progress (per-language translation statistics)
// ---------------------------------------------------------------------------

func newProgressCmd(a *app) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: i18n.T("Show translation progress per language"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openStore()
			if err != nil {
				return err
			}
			defer b.Close()

			proj, err := b.Project(ctx, project)
			if err != nil {
				return fmt.Errorf("project %s: %w", project, err)
			}
			rows, err := b.Progress(ctx, project)
			if err != nil {
				return err
			}
			entries, err := b.ActiveEntries(ctx, project)
			if err != nil {
				return err
			}

			title := proj.Slug
			if proj.Name != "" {
				title = proj.Name + " (" + proj.Slug + ")"
			}
			fmt.Fprintf(a.out, "%s, %s: %s\n", title, i18n.T("source"), proj.SourceLanguage)
			fmt.Fprintf(a.out, i18n.N("%d active string", "%d active strings", len(entries))+"\n", len(entries))
			if len(rows) == 0 {
				fmt.Fprintln(a.out, i18n.T("No translations yet"))
				return nil
			}

			width := len("lang")
			for _, r := range rows {
				width = max(width, len(r.Language))
			}
			fmt.Fprintln(a.out)
			for _, r := range rows {
				fmt.Fprintf(a.out, "  %-*s  %s  %d/%d  (%s %d)\n",
					width, r.Language, progressBar(int(r.Percent()), 20, a.color),
					r.Translated, r.Total, i18n.T("approved"), r.Approved)
			}
			return nil
		},
	}

	addProjectFlag(cmd, &project)

	return cmd
}

// progressBar renders percent as a bar of width cells followed by the number.
func progressBar(percent, width int, color bool) string {
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if color {
		c := colorGreen
		switch {
		case percent < 30:
			c = colorRed
		case percent < 80:
			c = colorYellow
		}
		bar = c + bar + colorReset
	}
	return fmt.Sprintf("%s %3d%%", bar, percent)
}

// ---------------------------------------------------------------------------
// history (list uploaded versions)
// ---------------------------------------------------------------------------

func newHistoryCmd(a *app) *cobra.Command {
	var project, path string

	cmd := &cobra.Command{
		Use:   "history",
		Short: i18n.T("List uploaded versions of a project's files"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openStore()
			if err != nil {
				return err
			}
			defer b.Close()

			versions, err := b.Versions(ctx, project, path)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(a.out, i18n.T("No versions"))
				return nil
			}
			for _, v := range versions {
				fmt.Fprintf(a.out, "%-30s v%-3d %-7s %s  %s\n",
					v.FilePath, v.VersionNumber, v.FileFormat, v.Checksum[:12], v.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}

	addProjectFlag(cmd, &project)
	cmd.Flags().StringVar(&path, "path", "", "Only this logical file path")

	return cmd
}

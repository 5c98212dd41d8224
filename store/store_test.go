package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/tm"
	"github.com/minios-linux/locflow/versioning"
)

// forEachStore runs fn against a fresh memory store and a fresh SQLite
// database.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "locflow.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func upload(t *testing.T, e *versioning.Engine, content string) *versioning.UploadResult {
	t.Helper()
	res, err := e.ApplyUpload(context.Background(), versioning.UploadRequest{
		Project: "web", FilePath: "locales/en.json", Content: []byte(content),
	})
	require.NoError(t, err)
	return res
}

func TestUploadLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := versioning.NewEngine(s)

		first := upload(t, e, `{"key1":"Hello","key2":"World"}`)
		assert.Equal(t, versioning.StatusProcessed, first.Status)
		assert.Equal(t, 1, first.VersionNumber)
		assert.Equal(t, 2, first.New)

		second := upload(t, e, `{"key1":"Hello!","key3":"New string"}`)
		assert.Equal(t, versioning.UploadResult{
			VersionNumber: 2, VersionID: second.VersionID, Status: versioning.StatusProcessed,
			New: 1, Updated: 1, Removed: 1,
		}, *second)

		again := upload(t, e, `{"key1":"Hello!","key3":"New string"}`)
		assert.Equal(t, versioning.StatusUnchanged, again.Status)
		assert.Equal(t, 2, again.VersionNumber)
		assert.Zero(t, again.New+again.Updated+again.Removed)

		back := upload(t, e, `{"key1":"Hello","key2":"World"}`)
		assert.Equal(t, versioning.StatusUnchanged, back.Status, "any earlier version with the same checksum short-circuits")
		assert.Equal(t, 1, back.VersionNumber)

		entries, err := s.ActiveEntries(ctx, "web")
		require.NoError(t, err)
		assert.Equal(t, []string{"key1", "key3"}, entry.Keys(entries))
		assert.Equal(t, "Hello!", entries[0].SourceText)

		versions, err := s.Versions(ctx, "web", "")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "json", versions[0].FileFormat)
		assert.Equal(t, versioning.Checksum([]byte(`{"key1":"Hello","key2":"World"}`)), versions[0].Checksum)

		removed, err := s.StringByKey(ctx, "web", "key2")
		require.NoError(t, err)
		assert.False(t, removed.IsActive, "removed strings are deactivated, not deleted")
	})
}

func TestUploadReactivatesRemovedKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := versioning.NewEngine(s)

		upload(t, e, `{"a":"A","b":"B"}`)
		before, err := s.StringByKey(ctx, "web", "b")
		require.NoError(t, err)
		_, err = s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "b", Language: "de", Text: "Be", Status: tm.StatusApproved})
		require.NoError(t, err)

		assert.Equal(t, 1, upload(t, e, `{"a":"A"}`).Removed)
		res := upload(t, e, `{"a":"A","b":"B2"}`)
		assert.Equal(t, 1, res.New)
		assert.Equal(t, 3, res.VersionNumber)

		after, err := s.StringByKey(ctx, "web", "b")
		require.NoError(t, err)
		assert.True(t, after.IsActive)
		assert.Equal(t, before.ID, after.ID, "reactivation keeps the string id")
		assert.Equal(t, "B2", after.SourceText)

		tr, err := s.Translations(ctx, "web", "de")
		require.NoError(t, err)
		assert.Equal(t, "Be", tr["b"], "translations survive deactivation")
	})
}

func TestUploadRejectedLeavesNoVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := versioning.NewEngine(s)
		upload(t, e, `{"a":"A"}`)

		_, err := e.ApplyUpload(ctx, versioning.UploadRequest{Project: "web", FilePath: "locales/en.json", Content: []byte(`{"a":`)})
		var perr *entry.ParseError
		require.ErrorAs(t, err, &perr)

		_, err = e.ApplyUpload(ctx, versioning.UploadRequest{Project: "web", FilePath: "locales/en.json", Content: []byte{0xff, 0xfe}})
		require.ErrorIs(t, err, versioning.ErrInvalidEncoding)

		versions, err := s.Versions(ctx, "web", "locales/en.json")
		require.NoError(t, err)
		assert.Len(t, versions, 1)

		res := upload(t, e, `{"a":"A","b":"B"}`)
		assert.Equal(t, 2, res.VersionNumber, "a rejected upload consumes no version number")
	})
}

func TestUploadRefreshesOrderWithoutCounting(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		e := versioning.NewEngine(s)
		upload(t, e, `{"a":"A","b":"B"}`)
		res := upload(t, e, `{"b":"B","a":"A"}`)
		assert.Equal(t, 0, res.New+res.Updated+res.Removed)

		entries, err := s.ActiveEntries(context.Background(), "web")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, entry.Keys(entries))
	})
}

func TestTranslationsAndProgress(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.EnsureProject(ctx, "web", "Web App", "en")
		require.NoError(t, err)
		upload(t, versioning.NewEngine(s), `{"ok":"OK","cancel":"Cancel","item_one":"1 item","item_other":"N items"}`)

		_, err = s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "ok", Language: "de", Text: "OK", Status: tm.StatusApproved})
		require.NoError(t, err)
		_, err = s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "cancel", Language: "de", Text: "Abbrechen"})
		require.NoError(t, err)
		tr, err := s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "item", Language: "de",
			PluralForms: map[string]string{"one": "1 Element", "other": "N Elemente", "few": ""}, Status: tm.StatusReview})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"one": "1 Element", "other": "N Elemente"}, tr.PluralForms)
		_, err = s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "ok", Language: "fr", Text: "D'accord"})
		require.NoError(t, err)

		got, err := s.Translations(ctx, "web", "de")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"ok":         "OK",
			"cancel":     "Abbrechen",
			"item_one":   "1 Element",
			"item_other": "N Elemente",
		}, got)

		progress, err := s.Progress(ctx, "web")
		require.NoError(t, err)
		assert.Equal(t, []Progress{
			{Language: "de", Total: 3, Translated: 3, Approved: 1},
			{Language: "fr", Total: 3, Translated: 1, Approved: 0},
		}, progress)
		assert.InDelta(t, 100.0/3, progress[1].Percent(), 1e-9)

		p, err := s.Project(ctx, "web")
		require.NoError(t, err)
		assert.Equal(t, "Web App", p.Name)
	})
}

func TestUpsertTranslationReplaces(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		upload(t, versioning.NewEngine(s), `{"ok":"OK"}`)

		first, err := s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "ok", Language: "de", Text: "Gut"})
		require.NoError(t, err)
		assert.Equal(t, tm.StatusDraft, first.Status)

		second, err := s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "ok", Language: "de", Text: "Okay", Status: tm.StatusApproved})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Okay", second.TranslatedText)
		assert.Equal(t, tm.StatusApproved, second.Status)
	})
}

func TestNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Project(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.StringByKey(ctx, "nope", "k")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.UpsertTranslation(ctx, TranslationInput{Project: "nope", Key: "k", Language: "de", Text: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Progress(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		upload(t, versioning.NewEngine(s), `{"a":"A"}`)
		upload(t, versioning.NewEngine(s), `{"b":"B"}`)
		_, err = s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "a", Language: "de", Text: "x"})
		assert.ErrorIs(t, err, ErrNotFound, "inactive strings cannot be translated")
	})
}

func TestRecordsFeedTranslationMemory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := versioning.NewEngine(s)
		upload(t, e, `{"save":"Save file","open":"Open file","quit":"Quit"}`)
		for key, text := range map[string]string{"save": "Datei speichern", "open": "Datei öffnen"} {
			_, err := s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: key, Language: "de", Text: text, Status: tm.StatusApproved})
			require.NoError(t, err)
		}
		_, err := s.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "quit", Language: "de", Text: "Beenden", Status: tm.StatusDraft})
		require.NoError(t, err)

		engine := tm.NewEngine(s)
		got, err := engine.Suggest(ctx, "Save files", "de")
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "save", got[0].Key)
		assert.Equal(t, "Datei speichern", got[0].TranslatedText)

		save, err := s.StringByKey(ctx, "web", "save")
		require.NoError(t, err)
		got, err = engine.Suggest(ctx, "Save file", "de", tm.ExcludeString(save.ID))
		require.NoError(t, err)
		for _, sg := range got {
			assert.NotEqual(t, "save", sg.Key)
		}

		got, err = engine.Suggest(ctx, "Quit", "de")
		require.NoError(t, err)
		assert.Empty(t, got, "drafts are never suggested")
	})
}

func TestConcurrentUploadsSerialize(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		const n = 8
		var wg sync.WaitGroup
		results := make([]*versioning.UploadResult, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Separate engines share no in-process lock; the store
				// transaction alone must serialize them.
				e := versioning.NewEngine(s)
				results[i], errs[i] = e.ApplyUpload(context.Background(), versioning.UploadRequest{
					Project: "web", FilePath: "en.json", Content: []byte(fmt.Sprintf(`{"k%d":"v"}`, i)),
				})
			}()
		}
		wg.Wait()

		seen := make(map[int]bool)
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.False(t, seen[results[i].VersionNumber], "version %d assigned twice", results[i].VersionNumber)
			seen[results[i].VersionNumber] = true
		}
		for v := 1; v <= n; v++ {
			assert.True(t, seen[v], "version %d missing", v)
		}

		entries, err := s.ActiveEntries(context.Background(), "web")
		require.NoError(t, err)
		assert.Len(t, entries, 1, "each upload replaces the whole active set")
	})
}

func TestMemorySnapshotRestore(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	upload(t, versioning.NewEngine(src), `{"a":"A","n_one":"1","n_other":"N"}`)
	_, err := src.UpsertTranslation(ctx, TranslationInput{Project: "web", Key: "a", Language: "de", Text: "Ah", Status: tm.StatusApproved})
	require.NoError(t, err)

	snap := src.Snapshot()
	require.Len(t, snap.Projects, 1)
	require.Len(t, snap.Strings, 2)
	require.Len(t, snap.Translations, 1)

	dst := NewMemoryStore()
	require.NoError(t, dst.Restore(snap))
	assert.Equal(t, snap, dst.Snapshot())

	res := upload(t, versioning.NewEngine(dst), `{"a":"A","n_one":"1","n_other":"N"}`)
	assert.Equal(t, versioning.StatusUnchanged, res.Status, "restored versions keep their checksums")
}

func TestMemoryRestoreRejectsDanglingReferences(t *testing.T) {
	err := NewMemoryStore().Restore(Snapshot{
		Strings: []versioning.TranslatableString{{ID: "s", Project: "missing", Key: "k"}},
	})
	assert.Error(t, err)

	err = NewMemoryStore().Restore(Snapshot{
		Translations: []Translation{{ID: "t", StringID: "missing"}},
	})
	assert.Error(t, err)
}

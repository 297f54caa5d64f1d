package export

import (
	"context"
	"encoding/csv"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
	"github.com/mdsync/mdsync/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func library() []manga.Manga {
	eight := 8
	return []manga.Manga{
		{
			ID:            "a",
			Type:          "manga",
			Status:        "reading",
			TitleLanguage: "ja-ro",
			Title:         "Yotsuba to!",
			AlternativeTitles: []manga.AlternativeTitle{
				{Language: "ja", Title: "よつばと！"},
				{Language: "en", Title: "Yotsuba&!"},
				{Language: "ja-ro", Title: "Yotsubato"},
			},
			ExternalLinks: []manga.ExternalLink{{Key: "mu", Value: "2s"}},
			URL:           "https://mangadex.org/title/a",
			Rating:        manga.Rating{Average: 9.12, PersonalRating: &eight},
		},
		{
			ID:     "b",
			Type:   "manga",
			Status: "plan_to_read",
			Title:  "Untitled, \"quoted\"",
			URL:    "https://mangadex.org/title/b",
		},
	}
}

func TestPath(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "follows_2024-03-09_07-05-01.csv"), Path("out", "follows", at, "csv"))
}

func TestFields(t *testing.T) {
	rows := library()
	assert.Equal(t, []string{
		"a", "manga", "reading", "ja-ro", "Yotsuba to!",
		"Yotsuba&!", "よつばと！", "Yotsubato",
		"9.12", "8", "https://mangadex.org/title/a",
	}, Fields(rows[0]))
	assert.Equal(t, "None", Fields(rows[1])[9])
	assert.Len(t, Fields(rows[1]), len(Headers))
}

func TestCSVExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "follows.csv")
	require.NoError(t, CSV{Path: path}.Export(context.Background(), library()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, Headers, records[0])
	assert.Equal(t, Fields(library()[0]), records[1])
	assert.Equal(t, "Untitled, \"quoted\"", records[2][4])
}

func TestExcelExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "follows.xlsx")
	require.NoError(t, Excel{Path: path}.Export(context.Background(), library()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, Fields(library()[0]), rows[1])
}

func TestFileExportsStopOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()

	assert.ErrorIs(t, CSV{Path: filepath.Join(dir, "f.csv")}.Export(ctx, library()), context.Canceled)
	assert.ErrorIs(t, Excel{Path: filepath.Join(dir, "f.xlsx")}.Export(ctx, library()), context.Canceled)
}

func TestSQLiteExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "mdsync.sqlite")
	var got []storage.Change
	e := SQLite{
		Path:    path,
		Now:     func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		Changes: func(c []storage.Change) { got = c },
	}
	require.NoError(t, e.Export(context.Background(), library()))
	assert.Len(t, got, 2)

	require.NoError(t, e.Export(context.Background(), library()[:1]))
	require.Len(t, got, 1)
	assert.Equal(t, "removed", got[0].ChangeType)

	db, err := storage.Open(path)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
}

type fakeClient struct {
	added  []int64
	closed int
	err    error
}

func (f *fakeClient) TrackedIDs(context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {}
}

func (f *fakeClient) AddSeries(_ context.Context, id int64) (mangaupdates.Outcome, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.added = append(f.added, id)
	return mangaupdates.Submitted, nil
}

func (f *fakeClient) Close() error {
	f.closed++
	return nil
}

func TestMangaUpdatesExport(t *testing.T) {
	dir := t.TempDir()
	mappings := filepath.Join(dir, "mangaupdates.json")
	require.NoError(t, os.WriteFile(mappings, []byte(`{"2s":"2t"}`), 0o600))
	report := filepath.Join(dir, "mangaupdates-errors.txt")

	client := &fakeClient{}
	e := &MangaUpdates{Client: client, MappingsPath: mappings, ReportPath: report}
	require.NoError(t, e.Export(context.Background(), library()))

	assert.Equal(t, []int64{101}, client.added, "legacy id is remapped")
	assert.Equal(t, 1, client.closed)
	require.NotNil(t, e.Result)
	assert.Equal(t, 1, e.Result.Unmappable)

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), `"Untitled, \"quoted\"" (b) has not been added`))
}

func TestMangaUpdatesExportClosesClientOnFailure(t *testing.T) {
	boom := errors.New("transport down")
	client := &fakeClient{err: boom}
	e := &MangaUpdates{Client: client, ReportPath: filepath.Join(t.TempDir(), "errors.txt")}

	err := e.Export(context.Background(), library())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, client.closed)
	require.NotNil(t, e.Result)
	assert.Equal(t, 0, e.Result.Added)
}

func TestMangaUpdatesExportMissingMappingsFile(t *testing.T) {
	client := &fakeClient{}
	e := &MangaUpdates{Client: client, MappingsPath: filepath.Join(t.TempDir(), "nope.json"), ReportPath: filepath.Join(t.TempDir(), "errors.txt")}

	assert.Error(t, e.Export(context.Background(), library()))
	assert.Empty(t, client.added)
	assert.Equal(t, 1, client.closed)
}

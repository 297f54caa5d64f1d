package musync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
	"github.com/mdsync/mdsync/pkg/whttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	tracked  []int64
	listErr  error
	outcomes map[int64]mangaupdates.Outcome
	errs     map[int64]error
	calls    []int64
}

func (f *fakeTarget) TrackedIDs(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		for _, id := range f.tracked {
			if !yield(id, nil) {
				return
			}
		}
		if f.listErr != nil {
			yield(0, f.listErr)
		}
	}
}

func (f *fakeTarget) AddSeries(ctx context.Context, id int64) (mangaupdates.Outcome, error) {
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return 0, err
	}
	if o, ok := f.outcomes[id]; ok {
		return o, nil
	}
	return mangaupdates.Submitted, nil
}

// entry builds a manga whose "mu" link decodes to the given base 36 value.
func entry(id, mu string) manga.Manga {
	m := manga.Manga{ID: id, Title: "Title " + id, URL: "https://mangadex.org/title/" + id}
	if mu != "" {
		m.ExternalLinks = []manga.ExternalLink{{Key: "al", Value: "1"}, {Key: "mu", Value: mu}}
	}
	return m
}

func reportLines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRunUnmappableEntryIsReportedWithoutNetworkCalls(t *testing.T) {
	target := &fakeTarget{}
	var buf bytes.Buffer

	res, err := Run(context.Background(), Config{Target: target, Report: NewReport(&buf)}, []manga.Manga{
		entry("a", ""),
		entry("b", "2s"),
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{100}, target.calls, "only the mappable entry is submitted")
	assert.Equal(t, 1, res.Unmappable)
	assert.Equal(t, 1, res.Added)
	lines := reportLines(&buf)
	require.Len(t, lines, 1)
	assert.Equal(t, `"Title a" (a) has not been added, its ID is not available in MangaDex. Check https://mangadex.org/title/a`, lines[0])
}

func TestRunSkipsAlreadyTrackedEntries(t *testing.T) {
	target := &fakeTarget{tracked: []int64{42}}
	var buf bytes.Buffer

	// "16" in base 36 is 42.
	res, err := Run(context.Background(), Config{Target: target, Report: NewReport(&buf)}, []manga.Manga{entry("a", "16")})
	require.NoError(t, err)

	assert.Empty(t, target.calls)
	assert.Empty(t, buf.String())
	assert.Equal(t, 1, res.Skipped)
}

func TestRunNotFoundIsReportedAndRunContinues(t *testing.T) {
	target := &fakeTarget{outcomes: map[int64]mangaupdates.Outcome{42: mangaupdates.NotFound}}
	var buf bytes.Buffer

	res, err := Run(context.Background(), Config{Target: target, Report: NewReport(&buf)}, []manga.Manga{
		entry("a", "16"),
		entry("b", "2s"),
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{42, 100}, target.calls)
	assert.NotContains(t, res.Tracked, int64(42))
	assert.Contains(t, res.Tracked, int64(100))
	assert.Equal(t, 1, res.NotFound)
	lines := reportLines(&buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], ReasonNotFound)
	assert.Contains(t, lines[0], "(a)")
}

func TestRunNeverSubmitsTheSameSeriesTwice(t *testing.T) {
	target := &fakeTarget{outcomes: map[int64]mangaupdates.Outcome{
		200: mangaupdates.NotFound,
		300: mangaupdates.AlreadyTracked,
	}}
	var buf bytes.Buffer

	// 100="2s", 200="5k", 300="8c"; the legacy key "old" is remapped onto 100.
	mangas := []manga.Manga{
		entry("a", "2s"),
		entry("b", "old"),
		entry("c", "5k"),
		entry("d", "5k"),
		entry("e", "8c"),
		entry("f", "8c"),
	}
	res, err := Run(context.Background(), Config{
		Target:   target,
		Mappings: mangaupdates.Mappings{"old": "2s"},
		Report:   NewReport(&buf),
	}, mangas)
	require.NoError(t, err)

	assert.Equal(t, []int64{100, 200, 300}, target.calls)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.NotFound)
	assert.Equal(t, 2, res.AlreadyTracked)
	assert.Len(t, reportLines(&buf), 4)
}

func TestRunAlreadyTrackedAnomalyIsNotAddedToTrackedSet(t *testing.T) {
	target := &fakeTarget{outcomes: map[int64]mangaupdates.Outcome{42: mangaupdates.AlreadyTracked}}
	var buf bytes.Buffer

	res, err := Run(context.Background(), Config{Target: target, Report: NewReport(&buf)}, []manga.Manga{entry("a", "16")})
	require.NoError(t, err)

	assert.NotContains(t, res.Tracked, int64(42))
	lines := reportLines(&buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], ReasonAlreadyTracked)
}

func TestRunFatalErrorKeepsEarlierReportLines(t *testing.T) {
	fatal := &whttp.RequestError{Method: "POST", URL: "https://api.mangaupdates.com/v1/lists/series", StatusCode: 502, ResponseBody: "bad gateway"}
	target := &fakeTarget{
		outcomes: map[int64]mangaupdates.Outcome{42: mangaupdates.NotFound},
		errs:     map[int64]error{100: fatal},
	}
	path := filepath.Join(t.TempDir(), "mangaupdates-errors.txt")
	report, err := CreateReport(path)
	require.NoError(t, err)

	res, err := Run(context.Background(), Config{Target: target, Report: report}, []manga.Manga{
		entry("a", ""),
		entry("b", "16"),
		entry("c", "2s"),
		entry("d", "8c"),
	})

	var reqErr *whttp.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 502, reqErr.StatusCode)
	assert.Equal(t, []int64{42, 100}, target.calls, "nothing after the fatal entry is submitted")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Unmappable)
	assert.Equal(t, 1, res.NotFound)

	// Read before Close: the lines must already be on disk.
	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))
	assert.Equal(t, 2, report.Lines())
	require.NoError(t, report.Close())
	require.NoError(t, report.Close())
}

func TestRunTrackedListFailureIsFatal(t *testing.T) {
	boom := errors.New("list failed")
	target := &fakeTarget{tracked: []int64{1}, listErr: boom}

	_, err := Run(context.Background(), Config{Target: target}, []manga.Manga{entry("a", "2s")})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, target.calls)
}

func TestRunInvalidIdentifierIsFatal(t *testing.T) {
	target := &fakeTarget{}
	var buf bytes.Buffer

	_, err := Run(context.Background(), Config{
		Target:   target,
		Mappings: mangaupdates.Mappings{"legacy": "???"},
		Report:   NewReport(&buf),
	}, []manga.Manga{entry("a", "legacy"), entry("b", "2s")})

	var invalid *mangaupdates.InvalidIDError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "???", invalid.Value)
	assert.Empty(t, target.calls)
	assert.Empty(t, buf.String())
}

func TestRunUnexpectedOutcomeIsFatal(t *testing.T) {
	target := &fakeTarget{outcomes: map[int64]mangaupdates.Outcome{42: mangaupdates.Outcome(99)}}

	_, err := Run(context.Background(), Config{Target: target}, []manga.Manga{entry("a", "16"), entry("b", "2s")})
	assert.ErrorIs(t, err, ErrUnexpectedOutcome)
	assert.Equal(t, []int64{42}, target.calls)
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	target := &fakeTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, Config{Target: target}, []manga.Manga{entry("a", "2s")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.calls)
	assert.Equal(t, 0, res.Added)
}

func TestRunRequiresTarget(t *testing.T) {
	_, err := Run(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

type recordingLogger struct{ lines []string }

func (l *recordingLogger) Infof(f string, a ...interface{})  { l.add(f, a...) }
func (l *recordingLogger) Warnf(f string, a ...interface{})  { l.add(f, a...) }
func (l *recordingLogger) Errorf(f string, a ...interface{}) { l.add(f, a...) }
func (l *recordingLogger) Debugf(string, ...interface{})     {}
func (l *recordingLogger) add(f string, a ...interface{}) {
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprintf(f, a...)))
}

func TestRunProgressLinesCarryCounters(t *testing.T) {
	log := &recordingLogger{}
	target := &fakeTarget{}

	_, err := Run(context.Background(), Config{Target: target, Log: log}, []manga.Manga{entry("a", ""), entry("b", "2s")})
	require.NoError(t, err)

	joined := strings.Join(log.lines, "\n")
	assert.Contains(t, joined, `Entry 1 of 2 failed: the entry does not have a MangaUpdates ID. "Title a" (a)`)
	assert.Contains(t, joined, `Entry 2 of 2 added. "Title b" (b)`)
}

// Package musync mirrors a MangaDex library into a MangaUpdates reading
// list. It is strictly sequential: every entry is resolved, submitted and
// reported before the next one is looked at.
package musync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
)

// Logger abstracts logging so callers can use logrus or anything with the
// same shape.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Target is the MangaUpdates side of a sync. *mangaupdates.Client
// implements it.
type Target interface {
	TrackedIDs(ctx context.Context) iter.Seq2[int64, error]
	AddSeries(ctx context.Context, id int64) (mangaupdates.Outcome, error)
}

var _ Target = (*mangaupdates.Client)(nil)

// ErrUnexpectedOutcome is returned when the target answers with an outcome
// outside Submitted, NotFound and AlreadyTracked.
var ErrUnexpectedOutcome = errors.New("unexpected MangaUpdates outcome")

type Config struct {
	Target   Target
	Mappings mangaupdates.Mappings
	Report   *Report // nil discards report lines
	Log      Logger  // nil discards progress lines
}

// Result counts what happened to each entry. Tracked is the tracked set as
// it stood when the run ended; it is never written back anywhere.
type Result struct {
	Total          int
	Added          int
	Skipped        int
	NotFound       int
	AlreadyTracked int
	Unmappable     int
	Tracked        map[int64]struct{}
}

// Failed is the number of entries that ended up in the report.
func (r *Result) Failed() int {
	return r.NotFound + r.AlreadyTracked + r.Unmappable
}

type run struct {
	cfg    Config
	log    Logger
	report *Report
	result *Result

	// attempted remembers rejected submissions so two entries sharing a
	// series never cause a second request for it.
	attempted map[int64]mangaupdates.Outcome
}

// Run mirrors mangas, in order, into the target's reading list.
//
// Entries without a MangaUpdates link, unknown series and series the
// server says are already listed are reported and skipped. Anything else
// going wrong (transport failures, unknown responses, corrupt identifiers)
// stops the run and is returned as is. The partial Result is returned
// alongside such errors.
func Run(ctx context.Context, cfg Config, mangas []manga.Manga) (*Result, error) {
	if cfg.Target == nil {
		return nil, errors.New("musync: no target configured")
	}
	r := &run{
		cfg:       cfg,
		log:       cfg.Log,
		report:    cfg.Report,
		attempted: make(map[int64]mangaupdates.Outcome),
		result:    &Result{Total: len(mangas), Tracked: make(map[int64]struct{})},
	}
	if r.log == nil {
		r.log = nopLogger{}
	}
	if r.report == nil {
		r.report = NewReport(io.Discard)
	}

	for id, err := range cfg.Target.TrackedIDs(ctx) {
		if err != nil {
			return r.result, fmt.Errorf("could not fetch tracked MangaUpdates entries: %w", err)
		}
		r.result.Tracked[id] = struct{}{}
	}
	r.log.Infof("[MangaUpdates] %d entries already tracked.", len(r.result.Tracked))

	for i, m := range mangas {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		if err := r.entry(ctx, i+1, m); err != nil {
			return r.result, err
		}
	}

	r.log.Infof("[MangaUpdates] Done: %d added, %d skipped, %d reported.", r.result.Added, r.result.Skipped, r.result.Failed())
	return r.result, nil
}

func (r *run) entry(ctx context.Context, n int, m manga.Manga) error {
	prefix := fmt.Sprintf("[MangaUpdates] Entry %d of %d", n, r.result.Total)

	id, ok, err := mangaupdates.ResolveID(m, r.cfg.Mappings)
	if err != nil {
		return err
	}
	if !ok {
		r.result.Unmappable++
		r.log.Warnf("%s failed: the entry does not have a MangaUpdates ID. %s", prefix, m)
		return r.report.Write(m, ReasonUnmappable)
	}

	if _, tracked := r.result.Tracked[id]; tracked {
		r.result.Skipped++
		r.log.Infof("%s skipped: the entry is already tracked. %s", prefix, m)
		return nil
	}

	outcome, seen := r.attempted[id]
	if !seen {
		r.log.Debugf("%s: submitting MangaUpdates series %d", prefix, id)
		outcome, err = r.cfg.Target.AddSeries(ctx, id)
		if err != nil {
			return err
		}
	}

	switch outcome {
	case mangaupdates.Submitted:
		r.result.Tracked[id] = struct{}{}
		r.result.Added++
		r.log.Infof("%s added. %s", prefix, m)
		return nil
	case mangaupdates.NotFound:
		r.attempted[id] = outcome
		r.result.NotFound++
		r.log.Warnf("%s failed: the entry does not exist in MangaUpdates. %s", prefix, m)
		return r.report.Write(m, ReasonNotFound)
	case mangaupdates.AlreadyTracked:
		// Reported as an anomaly: the snapshot said otherwise, so the entry
		// was listed through another channel. It is not added to the set.
		r.attempted[id] = outcome
		r.result.AlreadyTracked++
		r.log.Warnf("%s skipped: the entry is already tracked, could this be a duplicate? %s", prefix, m)
		return r.report.Write(m, ReasonAlreadyTracked)
	}
	return fmt.Errorf("%w %s for %s", ErrUnexpectedOutcome, outcome, m)
}

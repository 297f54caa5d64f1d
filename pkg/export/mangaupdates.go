package export

import (
	"context"
	"errors"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/musync"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
)

// SyncTarget is a MangaUpdates client the exporter owns and closes.
type SyncTarget interface {
	musync.Target
	Close() error
}

// MangaUpdates mirrors the library into the MangaUpdates reading list and
// writes the entries it could not add to ReportPath.
type MangaUpdates struct {
	Client       SyncTarget
	MappingsPath string
	ReportPath   string
	Log          Logger

	// Result holds the counters of the last run, including a failed one.
	Result *musync.Result
}

func (*MangaUpdates) Name() string { return "MangaUpdates" }

func (e *MangaUpdates) Export(ctx context.Context, mangas []manga.Manga) (err error) {
	if e.Client == nil {
		return errors.New("no MangaUpdates client configured")
	}
	defer func() {
		err = errors.Join(err, e.Client.Close())
	}()

	mappings, err := mangaupdates.LoadMappings(e.MappingsPath)
	if err != nil {
		return err
	}

	report, err := musync.CreateReport(e.ReportPath)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, report.Close())
	}()

	if e.Log != nil {
		e.Log.Infof("[MangaUpdates] Writing failures to %s.", e.ReportPath)
	}
	e.Result, err = musync.Run(ctx, musync.Config{
		Target:   e.Client,
		Mappings: mappings,
		Report:   report,
		Log:      e.Log,
	}, mangas)
	return err
}

var _ SyncTarget = (*mangaupdates.Client)(nil)

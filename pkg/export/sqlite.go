package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mdsync/mdsync/internal/utils"
	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/storage"
)

// SQLite stores the library as a snapshot in the local history database.
// Writers from other processes are waited for through a lock file.
type SQLite struct {
	Path string
	// Now stamps the snapshot. Defaults to time.Now.
	Now func() time.Time
	// Changes, when set, receives the differences with the previous snapshot.
	Changes func([]storage.Change)
	Log     Logger
}

func (SQLite) Name() string { return "SQLite" }

func (e SQLite) Export(ctx context.Context, mangas []manga.Manga) error {
	path, err := utils.GetAbsDBPath(e.Path)
	if err != nil {
		return err
	}
	lock, err := utils.NewDBLock(path)
	if err != nil {
		return err
	}
	if err := lock.Lock(ctx); err != nil {
		return err
	}
	defer lock.Unlock()

	db, err := storage.Open(path)
	if err != nil {
		return fmt.Errorf("could not open database %s: %w", path, err)
	}
	defer db.Close()

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	runID := uuid.NewString()
	changes, err := db.SaveSnapshot(ctx, runID, now(), mangas)
	if err != nil {
		return err
	}
	if e.Log != nil {
		e.Log.Infof("[SQLite] Snapshot %s saved to %s: %d entries, %d changes.", runID, path, len(mangas), len(changes))
	}
	if e.Changes != nil {
		e.Changes(changes)
	}
	return nil
}

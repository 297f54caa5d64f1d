package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mdsync/mdsync/pkg/manga"
	_ "modernc.org/sqlite"
)

// ErrAbortingLibraryWipe is returned when an empty snapshot would remove a
// populated library.
var ErrAbortingLibraryWipe = errors.New("refusing to replace a populated library with an empty snapshot")

const (
	wipeThreshold = 10

	// Fixed width so that timestamps sort lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id           TEXT PRIMARY KEY,
  taken_at     TEXT NOT NULL,
  manga_count  INTEGER NOT NULL,
  added        INTEGER NOT NULL DEFAULT 0,
  updated      INTEGER NOT NULL DEFAULT 0,
  removed      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS manga (
  id               TEXT PRIMARY KEY,
  type             TEXT NOT NULL,
  status           TEXT NOT NULL,
  title_language   TEXT,
  title            TEXT NOT NULL,
  url              TEXT NOT NULL,
  rating_average   REAL,
  personal_rating  INTEGER,
  run_id           TEXT NOT NULL,
  first_seen_at    TEXT NOT NULL,
  last_seen_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_manga_status ON manga(status);
CREATE TABLE IF NOT EXISTS alt_titles (
  manga_id  TEXT NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
  position  INTEGER NOT NULL,
  language  TEXT NOT NULL,
  title     TEXT NOT NULL,
  PRIMARY KEY(manga_id, position)
);
CREATE TABLE IF NOT EXISTS links (
  manga_id  TEXT NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
  key       TEXT NOT NULL,
  value     TEXT NOT NULL,
  PRIMARY KEY(manga_id, key)
);
CREATE TABLE IF NOT EXISTS library_changes (
  id           INTEGER PRIMARY KEY,
  occurred_at  TEXT NOT NULL,
  run_id       TEXT NOT NULL,
  manga_id     TEXT NOT NULL,
  title        TEXT NOT NULL,
  status       TEXT NOT NULL,
  change_type  TEXT NOT NULL CHECK (change_type IN ('added','updated','removed'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON library_changes(occurred_at);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

type stored struct {
	Type, Status, Title string
	Average             sql.NullFloat64
	Personal            sql.NullInt64
}

func (s stored) differs(m manga.Manga) bool {
	if s.Type != m.Type || s.Status != m.Status || s.Title != m.Title {
		return true
	}
	if s.Average.Float64 != m.Rating.Average {
		return true
	}
	if s.Personal.Valid != (m.Rating.PersonalRating != nil) {
		return true
	}
	return m.Rating.PersonalRating != nil && int(s.Personal.Int64) != *m.Rating.PersonalRating
}

// SaveSnapshot records mangas as the current library in one transaction and
// returns what changed since the previous snapshot. Titles absent from
// mangas are removed.
func (d *DB) SaveSnapshot(ctx context.Context, runID string, at time.Time, mangas []manga.Manga) (changes []Change, err error) {
	ts := formatTimestamp(at)

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, "SELECT id, type, status, title, rating_average, personal_rating FROM manga")
	if err != nil {
		return nil, err
	}
	existing := make(map[string]stored)
	for rows.Next() {
		var (
			id string
			s  stored
		)
		if err = rows.Scan(&id, &s.Type, &s.Status, &s.Title, &s.Average, &s.Personal); err != nil {
			rows.Close()
			return nil, err
		}
		existing[id] = s
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	if len(mangas) == 0 && len(existing) > wipeThreshold {
		err = ErrAbortingLibraryWipe
		return nil, err
	}

	var added, updated int
	for _, m := range mangas {
		ex, existed := existing[m.ID]
		switch {
		case !existed:
			_, err = tx.ExecContext(ctx, `INSERT INTO manga(id, type, status, title_language, title, url, rating_average, personal_rating, run_id, first_seen_at, last_seen_at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
				m.ID, m.Type, m.Status, nullIfEmpty(m.TitleLanguage), m.Title, m.URL, nullIfZero(m.Rating.Average), personalRating(m), runID, ts, ts)
			if err != nil {
				return nil, err
			}
			added++
			changes = append(changes, Change{OccurredAt: at, RunID: runID, MangaID: m.ID, Title: m.Title, Status: m.Status, ChangeType: "added"})
			existing[m.ID] = stored{}
		default:
			_, err = tx.ExecContext(ctx, `UPDATE manga SET type = ?, status = ?, title_language = ?, title = ?, url = ?, rating_average = ?, personal_rating = ?, run_id = ?, last_seen_at = ? WHERE id = ?`,
				m.Type, m.Status, nullIfEmpty(m.TitleLanguage), m.Title, m.URL, nullIfZero(m.Rating.Average), personalRating(m), runID, ts, m.ID)
			if err != nil {
				return nil, err
			}
			if ex.differs(m) {
				updated++
				changes = append(changes, Change{OccurredAt: at, RunID: runID, MangaID: m.ID, Title: m.Title, Status: m.Status, ChangeType: "updated"})
			}
		}
		if err = replaceDetails(ctx, tx, m); err != nil {
			return nil, err
		}
	}

	// Sweep: titles the snapshot did not touch were unfollowed.
	staleRows, err := tx.QueryContext(ctx, "SELECT id, title, status FROM manga WHERE run_id != ?", runID)
	if err != nil {
		return nil, err
	}
	var removed []Change
	for staleRows.Next() {
		c := Change{OccurredAt: at, RunID: runID, ChangeType: "removed"}
		if err = staleRows.Scan(&c.MangaID, &c.Title, &c.Status); err != nil {
			staleRows.Close()
			return nil, err
		}
		removed = append(removed, c)
	}
	if err = staleRows.Close(); err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		if _, err = tx.ExecContext(ctx, "DELETE FROM manga WHERE run_id != ?", runID); err != nil {
			return nil, err
		}
		changes = append(changes, removed...)
	}

	for _, c := range changes {
		_, err = tx.ExecContext(ctx, `INSERT INTO library_changes(occurred_at, run_id, manga_id, title, status, change_type) VALUES(?,?,?,?,?,?)`, ts, runID, c.MangaID, c.Title, c.Status, c.ChangeType)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO runs(id, taken_at, manga_count, added, updated, removed) VALUES(?,?,?,?,?,?)`, runID, ts, len(mangas), added, updated, len(removed))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

func replaceDetails(ctx context.Context, tx *sql.Tx, m manga.Manga) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM alt_titles WHERE manga_id = ?", m.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM links WHERE manga_id = ?", m.ID); err != nil {
		return err
	}
	for i, t := range m.AlternativeTitles {
		if _, err := tx.ExecContext(ctx, "INSERT INTO alt_titles(manga_id, position, language, title) VALUES(?,?,?,?)", m.ID, i, t.Language, t.Title); err != nil {
			return err
		}
	}
	for _, l := range m.ExternalLinks {
		if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO links(manga_id, key, value) VALUES(?,?,?)", m.ID, l.Key, l.Value); err != nil {
			return err
		}
	}
	return nil
}

// ListManga returns the stored library ordered by title, details included.
func (d *DB) ListManga(ctx context.Context) ([]manga.Manga, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT id, type, status, title_language, title, url, rating_average, personal_rating FROM manga ORDER BY title, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []manga.Manga
	index := make(map[string]int)
	for rows.Next() {
		var (
			m        manga.Manga
			lang     sql.NullString
			average  sql.NullFloat64
			personal sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Type, &m.Status, &lang, &m.Title, &m.URL, &average, &personal); err != nil {
			return nil, err
		}
		m.TitleLanguage = lang.String
		m.Rating.Average = average.Float64
		if personal.Valid {
			p := int(personal.Int64)
			m.Rating.PersonalRating = &p
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	titles, err := d.sql.QueryContext(ctx, "SELECT manga_id, language, title FROM alt_titles ORDER BY manga_id, position")
	if err != nil {
		return nil, err
	}
	defer titles.Close()
	for titles.Next() {
		var id string
		var t manga.AlternativeTitle
		if err := titles.Scan(&id, &t.Language, &t.Title); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].AlternativeTitles = append(out[i].AlternativeTitles, t)
		}
	}
	if err := titles.Err(); err != nil {
		return nil, err
	}

	links, err := d.sql.QueryContext(ctx, "SELECT manga_id, key, value FROM links ORDER BY manga_id, rowid")
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var id string
		var l manga.ExternalLink
		if err := links.Scan(&id, &l.Key, &l.Value); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].ExternalLinks = append(out[i].ExternalLinks, l)
		}
	}
	return out, links.Err()
}

// ListRecentChanges returns the most recent N changes, newest first.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, run_id, manga_id, title, status, change_type FROM library_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAt string
		if err := rows.Scan(&occurredAt, &c.RunID, &c.MangaID, &c.Title, &c.Status, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTimestamp(occurredAt)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListRuns returns the most recent N snapshots, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT id, taken_at, manga_count, added, updated, removed FROM runs ORDER BY taken_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var takenAt string
		if err := rows.Scan(&r.ID, &takenAt, &r.MangaCount, &r.Added, &r.Updated, &r.Removed); err != nil {
			return nil, err
		}
		r.At = parseTimestamp(takenAt)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (d *DB) GetStats(ctx context.Context) ([]StatusStats, error) {
	query := `
		SELECT
			status,
			COUNT(id),
			COUNT(personal_rating)
		FROM
			manga
		GROUP BY
			status
		ORDER BY
			status;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []StatusStats
	for rows.Next() {
		var s StatusStats
		if err := rows.Scan(&s.Status, &s.Count, &s.Rated); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func personalRating(m manga.Manga) interface{} {
	if m.Rating.PersonalRating == nil {
		return nil
	}
	return *m.Rating.PersonalRating
}

// Package export writes a fetched MangaDex library to its destinations:
// flat files, the local SQLite history and a MangaUpdates reading list.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/musync"
)

// TimestampLayout names the files of one export run.
const TimestampLayout = "2006-01-02_15-04-05"

type Exporter interface {
	Name() string
	Export(ctx context.Context, mangas []manga.Manga) error
}

// Logger is shared with the sync engine so that one logrus logger serves
// every exporter.
type Logger = musync.Logger

// Path builds <dir>/<prefix>_<timestamp>.<ext>.
func Path(dir, prefix string, at time.Time, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, at.Format(TimestampLayout), ext))
}

// Alternative title languages written to the flat files, in column order.
var altTitleLanguages = []string{"en", "ja", "ja-ro"}

// Headers of the flat file exports.
var Headers = []string{
	"ID",
	"Type",
	"Status",
	"Main Title Language",
	"Main Title",
	"Alternative Title (EN)",
	"Alternative Title (JA)",
	"Alternative Title (romaji)",
	"Rating",
	"Personal Rating",
	"URL",
}

// Fields renders m as one row under Headers.
func Fields(m manga.Manga) []string {
	row := []string{m.ID, m.Type, m.Status, m.TitleLanguage, m.Title}
	for _, lang := range altTitleLanguages {
		row = append(row, m.AlternativeTitle(lang))
	}
	return append(row, m.Rating.FormatAverage(), m.Rating.FormatPersonal(), m.URL)
}

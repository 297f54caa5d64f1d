package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/mdsync/mdsync/pkg/manga"
)

// CSV writes a UTF-8 comma separated file.
type CSV struct {
	Path string
}

func (CSV) Name() string { return "CSV" }

func (e CSV) Export(ctx context.Context, mangas []manga.Manga) (err error) {
	f, err := os.Create(e.Path)
	if err != nil {
		return fmt.Errorf("could not create CSV file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(Headers); err != nil {
		return err
	}
	for _, m := range mangas {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Write(Fields(m)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

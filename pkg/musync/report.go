package musync

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mdsync/mdsync/pkg/manga"
)

// Reasons written to the report, one per recoverable failure.
const (
	ReasonUnmappable     = "its ID is not available in MangaDex."
	ReasonNotFound       = "it does not exist in MangaUpdates."
	ReasonAlreadyTracked = "it is already on one of your MangaUpdates lists, could this be a duplicate?"
)

// Report collects the entries that could not be mirrored. Every line is
// forced to durable storage before Write returns, so a fatal error later in
// the run never loses what was already reported.
type Report struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	lines  int
}

func NewReport(w io.Writer) *Report {
	return &Report{w: w}
}

// CreateReport truncates or creates the file at path.
func CreateReport(path string) (*Report, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create MangaUpdates report: %w", err)
	}
	return &Report{w: f, closer: f}, nil
}

func (r *Report) Write(m manga.Manga, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("%q (%s) has not been added, %s Check %s\n", m.Title, m.ID, reason, m.URL)
	if _, err := io.WriteString(r.w, line); err != nil {
		return fmt.Errorf("writing MangaUpdates report: %w", err)
	}
	if err := flush(r.w); err != nil {
		return fmt.Errorf("flushing MangaUpdates report: %w", err)
	}
	r.lines++
	return nil
}

// Lines is the number of lines written so far.
func (r *Report) Lines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

func (r *Report) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Sync() error }:
		return f.Sync()
	case interface{ Flush() error }:
		return f.Flush()
	}
	return nil
}

package mangaupdates

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mdsync/mdsync/pkg/manga"
)

// LinkKey is the tag MangaDex files MangaUpdates links under.
const LinkKey = "mu"

// Mappings rewrites legacy MangaUpdates identifiers, as still stored by
// MangaDex, into their current form. It is read-only once loaded.
type Mappings map[string]string

// LoadMappings reads a flat JSON object of legacy ID -> current ID. An
// empty path yields an empty table.
func LoadMappings(path string) (Mappings, error) {
	if path == "" {
		return Mappings{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read MangaUpdates mappings: %w", err)
	}
	m := Mappings{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("could not parse MangaUpdates mappings %s: %w", path, err)
	}
	return m, nil
}

// InvalidIDError means a MangaUpdates identifier is not valid base 36. It
// points at a corrupt mappings file or bad MangaDex data, so it is fatal.
type InvalidIDError struct {
	MangaID string
	Value   string
	Err     error
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid MangaUpdates ID %q for MangaDex entry %s: %v", e.Value, e.MangaID, e.Err)
}

func (e *InvalidIDError) Unwrap() error { return e.Err }

// ResolveID maps a MangaDex entry to its numeric MangaUpdates series ID.
// ok is false when the entry carries no MangaUpdates link at all.
func ResolveID(m manga.Manga, mappings Mappings) (id int64, ok bool, err error) {
	value, found := m.Link(LinkKey)
	if !found {
		return 0, false, nil
	}
	if replacement, remapped := mappings[value]; remapped {
		value = replacement
	}
	id, err = strconv.ParseInt(strings.TrimSpace(value), 36, 64)
	if err != nil {
		return 0, false, &InvalidIDError{MangaID: m.ID, Value: value, Err: err}
	}
	return id, true, nil
}

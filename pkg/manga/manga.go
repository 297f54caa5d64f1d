package manga

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is a followed title and the reading status the user set for it.
type Status struct {
	ID     string
	Status string
}

type AlternativeTitle struct {
	Language string
	Title    string
}

// ExternalLink is one entry of the links MangaDex keeps for a title,
// keyed by site tag ("mu", "al", "mal", ...).
type ExternalLink struct {
	Key   string
	Value string
}

// Rating holds the community (bayesian) rating and the user's own score.
// PersonalRating is nil when the user never rated the title.
type Rating struct {
	Average        float64
	PersonalRating *int
}

// Manga is a followed title as fetched from MangaDex. It is never modified
// once fetched.
type Manga struct {
	ID                string
	Type              string
	TitleLanguage     string
	Title             string
	Status            string
	AlternativeTitles []AlternativeTitle
	ExternalLinks     []ExternalLink
	URL               string
	Rating            Rating
}

// AlternativeTitle returns the first alternative title in language, or "".
// Language codes compare case-insensitively ("ja-ro" and "ja-RO").
func (m Manga) AlternativeTitle(language string) string {
	for _, t := range m.AlternativeTitles {
		if strings.EqualFold(t.Language, language) {
			return t.Title
		}
	}
	return ""
}

// Link returns the value of the first external link with the given key.
func (m Manga) Link(key string) (string, bool) {
	for _, l := range m.ExternalLinks {
		if l.Key == key {
			return l.Value, true
		}
	}
	return "", false
}

func (m Manga) String() string {
	return fmt.Sprintf("%q (%s)", m.Title, m.ID)
}

// FormatAverage renders the average the way the export files show it.
func (r Rating) FormatAverage() string {
	return strconv.FormatFloat(r.Average, 'f', -1, 64)
}

// FormatPersonal renders the personal rating, "None" when unset.
func (r Rating) FormatPersonal() string {
	if r.PersonalRating == nil {
		return "None"
	}
	return strconv.Itoa(*r.PersonalRating)
}

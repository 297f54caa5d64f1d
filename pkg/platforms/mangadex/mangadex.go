package mangadex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mdsync/mdsync/internal/utils"
	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/platforms"
	"github.com/mdsync/mdsync/pkg/throttle"
	"github.com/mdsync/mdsync/pkg/whttp"
	"github.com/tidwall/gjson"
)

const (
	MANGADEX_API_URL   = "https://api.mangadex.org"
	MANGADEX_AUTH_URL  = "https://auth.mangadex.org"
	MANGADEX_TITLE_URL = "https://mangadex.org/title/"

	// DefaultThreshold spaces out calls to stay well below the public limit.
	DefaultThreshold = 500 * time.Millisecond

	tokenPath        = "/realms/mangadex/protocol/openid-connect/token"
	ratingsBatchSize = 100
)

// Credentials of a MangaDex personal API client.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Client reads a user's followed titles from MangaDex. The access token is
// renewed lazily once half of its lifetime has passed. Not safe for
// concurrent use.
type Client struct {
	creds     Credentials
	opts      platforms.Options
	expiresAt time.Time
}

// NewClient spaces calls DefaultThreshold apart unless WithGate or
// WithThreshold says otherwise.
func NewClient(creds Credentials, opts ...platforms.Option) *Client {
	return &Client{
		creds: creds,
		opts: platforms.Resolve(platforms.Options{
			BaseURL: MANGADEX_API_URL,
			AuthURL: MANGADEX_AUTH_URL,
			Gate:    throttle.New(DefaultThreshold),
		}, opts...),
	}
}

func (c *Client) Name() string { return "MangaDex" }

func (c *Client) Close() error {
	return c.opts.Session.Close()
}

func (c *Client) send(ctx context.Context, req *whttp.WHTTPReq) (*whttp.WHTTPRes, error) {
	var res *whttp.WHTTPRes
	err := c.opts.Gate.Do(ctx, func() error {
		var err error
		res, err = c.opts.Session.Send(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// authorize fetches a new token when none is held or the current one is
// past half of its lifetime.
func (c *Client) authorize(ctx context.Context) error {
	loginAt := c.opts.Clock()
	if !c.expiresAt.IsZero() && loginAt.Before(c.expiresAt) {
		return nil
	}

	utils.Log.Info("Authenticating in MangaDex.")
	req := &whttp.WHTTPReq{
		Method: http.MethodPost,
		URL:    strings.TrimSuffix(c.opts.AuthURL, "/") + tokenPath,
		Form: url.Values{
			"grant_type":    {"password"},
			"username":      {c.creds.Username},
			"password":      {c.creds.Password},
			"client_id":     {c.creds.ClientID},
			"client_secret": {c.creds.ClientSecret},
		},
	}
	res, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return whttp.NewRequestError(req, res, "authentication rejected")
	}

	token := gjson.GetMany(res.BodyString, "access_token", "expires_in", "token_type")
	if token[0].String() == "" || token[1].Int() <= 0 {
		return whttp.NewRequestError(req, res, "token response is incomplete")
	}
	tokenType := token[2].String()
	if tokenType == "" {
		tokenType = "Bearer"
	}

	lifetime := time.Duration(token[1].Int()) * time.Second
	c.expiresAt = loginAt.Add(lifetime / 2)
	c.opts.Session.SetHeader("Authorization", tokenType+" "+token[0].String())
	return nil
}

// get performs an authorized GET and checks the {"result":"ok"} envelope.
func (c *Client) get(ctx context.Context, path string, query url.Values) (string, error) {
	if err := c.authorize(ctx); err != nil {
		return "", err
	}
	u := strings.TrimSuffix(c.opts.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req := &whttp.WHTTPReq{Method: http.MethodGet, URL: u}
	res, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", whttp.NewRequestError(req, res, "unexpected status")
	}
	if gjson.Get(res.BodyString, "result").String() != "ok" {
		return "", whttp.NewRequestError(req, res, "result is not ok")
	}
	return res.BodyString, nil
}

// Statuses lists every followed title with its reading status, in the
// order MangaDex returns them.
func (c *Client) Statuses(ctx context.Context) ([]manga.Status, error) {
	body, err := c.get(ctx, "/manga/status", nil)
	if err != nil {
		return nil, err
	}
	var statuses []manga.Status
	gjson.Get(body, "statuses").ForEach(func(key, value gjson.Result) bool {
		statuses = append(statuses, manga.Status{ID: key.String(), Status: value.String()})
		return true
	})
	return statuses, nil
}

// Manga fetches the details of one followed title.
func (c *Client) Manga(ctx context.Context, status manga.Status) (manga.Manga, error) {
	body, err := c.get(ctx, "/manga/"+url.PathEscape(status.ID), nil)
	if err != nil {
		return manga.Manga{}, err
	}
	m := parseManga(gjson.Get(body, "data"))
	m.Status = status.Status
	return m, nil
}

func parseManga(data gjson.Result) manga.Manga {
	attrs := data.Get("attributes")
	m := manga.Manga{
		ID:   data.Get("id").String(),
		Type: data.Get("type").String(),
		URL:  MANGADEX_TITLE_URL + data.Get("id").String(),
	}

	attrs.Get("title").ForEach(func(key, value gjson.Result) bool {
		m.TitleLanguage = key.String()
		m.Title = value.String()
		return false
	})

	for _, alt := range attrs.Get("altTitles").Array() {
		alt.ForEach(func(key, value gjson.Result) bool {
			m.AlternativeTitles = append(m.AlternativeTitles, manga.AlternativeTitle{Language: key.String(), Title: value.String()})
			return false
		})
	}

	attrs.Get("links").ForEach(func(key, value gjson.Result) bool {
		m.ExternalLinks = append(m.ExternalLinks, manga.ExternalLink{Key: key.String(), Value: value.String()})
		return true
	})
	return m
}

// Ratings returns the community and personal ratings of the given titles.
// Titles nobody rated are absent from the map.
func (c *Client) Ratings(ctx context.Context, ids []string) (map[string]manga.Rating, error) {
	ratings := make(map[string]manga.Rating, len(ids))
	for start := 0; start < len(ids); start += ratingsBatchSize {
		end := min(start+ratingsBatchSize, len(ids))
		query := url.Values{"manga[]": ids[start:end]}

		personal, err := c.get(ctx, "/rating", query)
		if err != nil {
			return nil, err
		}
		gjson.Get(personal, "ratings").ForEach(func(key, value gjson.Result) bool {
			score := int(value.Get("rating").Int())
			r := ratings[key.String()]
			r.PersonalRating = &score
			ratings[key.String()] = r
			return true
		})

		stats, err := c.get(ctx, "/statistics/manga", query)
		if err != nil {
			return nil, err
		}
		gjson.Get(stats, "statistics").ForEach(func(key, value gjson.Result) bool {
			r := ratings[key.String()]
			r.Average = value.Get("rating.bayesian").Float()
			ratings[key.String()] = r
			return true
		})
	}
	return ratings, nil
}

// FollowOptions tunes Follows.
type FollowOptions struct {
	// WithRatings adds community and personal ratings to every title.
	WithRatings bool
	// Progress, when set, is called after each title is fetched.
	Progress func(n, total int, m manga.Manga)
}

// Follows fetches the whole followed library: the status list first, then
// one detail request per title.
func (c *Client) Follows(ctx context.Context, opts FollowOptions) ([]manga.Manga, error) {
	utils.Log.Info("Fetching statuses from MangaDex.")
	statuses, err := c.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch MangaDex statuses: %w", err)
	}
	utils.Log.Infof("%d entries found.", len(statuses))

	mangas := make([]manga.Manga, 0, len(statuses))
	for i, status := range statuses {
		m, err := c.Manga(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("could not fetch MangaDex entry %s: %w", status.ID, err)
		}
		mangas = append(mangas, m)
		if opts.Progress != nil {
			opts.Progress(i+1, len(statuses), m)
		}
	}

	if opts.WithRatings && len(mangas) > 0 {
		utils.Log.Info("Fetching ratings from MangaDex.")
		ids := make([]string, len(mangas))
		for i, m := range mangas {
			ids[i] = m.ID
		}
		ratings, err := c.Ratings(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("could not fetch MangaDex ratings: %w", err)
		}
		for i := range mangas {
			mangas[i].Rating = ratings[mangas[i].ID]
		}
	}
	return mangas, nil
}

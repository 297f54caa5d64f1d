package mangaupdates

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/mdsync/mdsync/internal/utils"
	"github.com/mdsync/mdsync/pkg/platforms"
	"github.com/mdsync/mdsync/pkg/throttle"
	"github.com/mdsync/mdsync/pkg/whttp"
	"github.com/tidwall/gjson"
)

const (
	MANGAUPDATES_API_URL = "https://api.mangaupdates.com"

	// DefaultThreshold keeps us under the undocumented MangaUpdates limit.
	DefaultThreshold = 1100 * time.Millisecond

	listPageSize = 100

	// readingListID is the "Reading List" every account owns.
	readingListID = 0

	errSeriesDoesNotExist  = "That series does not exist"
	errSeriesAlreadyListed = "That series is already on one of your lists."
)

// Outcome is how MangaUpdates answered a request to add a series.
type Outcome int

const (
	Submitted Outcome = iota + 1
	NotFound
	AlreadyTracked
)

func (o Outcome) String() string {
	switch o {
	case Submitted:
		return "submitted"
	case NotFound:
		return "not found"
	case AlreadyTracked:
		return "already tracked"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type Credentials struct {
	Username string
	Password string
}

// Client talks to the MangaUpdates v1 API on behalf of one user. It logs
// in lazily and keeps the session token for the rest of its life. Not safe
// for concurrent use.
type Client struct {
	creds         Credentials
	opts          platforms.Options
	authenticated bool
}

// NewClient spaces calls DefaultThreshold apart unless WithGate or
// WithThreshold says otherwise.
func NewClient(creds Credentials, opts ...platforms.Option) *Client {
	return &Client{
		creds: creds,
		opts: platforms.Resolve(platforms.Options{
			BaseURL: MANGAUPDATES_API_URL,
			Gate:    throttle.New(DefaultThreshold),
		}, opts...),
	}
}

func (c *Client) Name() string { return "MangaUpdates" }

// Close releases the underlying session.
func (c *Client) Close() error {
	return c.opts.Session.Close()
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.opts.BaseURL, "/") + path
}

// send pushes req through the gate and the session.
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

// Authenticate logs in unless a token is already held.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.authenticated {
		return nil
	}

	utils.Log.Info("Authenticating in MangaUpdates.")
	req := &whttp.WHTTPReq{
		Method: http.MethodPut,
		URL:    c.endpoint("/v1/account/login"),
		JSON: map[string]string{
			"username": c.creds.Username,
			"password": c.creds.Password,
		},
	}
	res, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return whttp.NewRequestError(req, res, "login rejected")
	}
	if gjson.Get(res.BodyString, "status").String() != "success" {
		return whttp.NewRequestError(req, res, "login did not succeed")
	}
	token := gjson.Get(res.BodyString, "context.session_token").String()
	if token == "" {
		return whttp.NewRequestError(req, res, "login response has no session token")
	}

	c.opts.Session.SetHeader("Authorization", "Bearer "+token)
	c.authenticated = true
	return nil
}

type searchRequest struct {
	Page    int `json:"page"`
	PerPage int `json:"perpage"`
}

// TrackedIDs lazily pages through the reading list and yields the series
// ID of every entry. Paging stops at the first empty page. Any failure is
// yielded once and ends the sequence; there is no partial fallback.
func (c *Client) TrackedIDs(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		if err := c.Authenticate(ctx); err != nil {
			yield(0, err)
			return
		}

		utils.Log.Info("Fetching already tracked entries from MangaUpdates.")
		for page := 1; ; page++ {
			req := &whttp.WHTTPReq{
				Method: http.MethodPost,
				URL:    c.endpoint(fmt.Sprintf("/v1/lists/%d/search", readingListID)),
				JSON:   searchRequest{Page: page, PerPage: listPageSize},
			}
			res, err := c.send(ctx, req)
			if err != nil {
				yield(0, err)
				return
			}
			if res.StatusCode != http.StatusOK {
				yield(0, whttp.NewRequestError(req, res, fmt.Sprintf("listing page %d", page)))
				return
			}

			results := gjson.Get(res.BodyString, "results")
			if !results.IsArray() {
				yield(0, whttp.NewRequestError(req, res, "list response has no results array"))
				return
			}
			items := results.Array()
			if len(items) == 0 {
				return
			}

			utils.Log.Debugf("MangaUpdates list page %d: %d entries", page, len(items))
			for _, item := range items {
				id := item.Get("record.series.id")
				if !id.Exists() {
					yield(0, whttp.NewRequestError(req, res, "list entry has no series id"))
					return
				}
				if !yield(id.Int(), nil) {
					return
				}
			}
		}
	}
}

// TrackedSet drains TrackedIDs into a set.
func (c *Client) TrackedSet(ctx context.Context) (map[int64]struct{}, error) {
	set := make(map[int64]struct{})
	for id, err := range c.TrackedIDs(ctx) {
		if err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, nil
}

type seriesRef struct {
	ID int64 `json:"id"`
}

type listEntry struct {
	Series seriesRef `json:"series"`
	ListID int       `json:"list_id"`
}

// AddSeries puts one series on the reading list. The two rejections
// MangaUpdates is known to send come back as outcomes; everything else is
// a *whttp.RequestError.
func (c *Client) AddSeries(ctx context.Context, id int64) (Outcome, error) {
	if err := c.Authenticate(ctx); err != nil {
		return 0, err
	}

	req := &whttp.WHTTPReq{
		Method: http.MethodPost,
		URL:    c.endpoint("/v1/lists/series"),
		JSON:   []listEntry{{Series: seriesRef{ID: id}, ListID: readingListID}},
	}
	res, err := c.send(ctx, req)
	if err != nil {
		return 0, err
	}
	return classifyAddSeries(req, res)
}

func classifyAddSeries(req *whttp.WHTTPReq, res *whttp.WHTTPRes) (Outcome, error) {
	switch res.StatusCode {
	case http.StatusOK:
		return Submitted, nil
	case http.StatusBadRequest:
		message := gjson.Get(res.BodyString, "context.errors.0.error")
		switch {
		case !message.Exists():
			return 0, whttp.NewRequestError(req, res, "rejection without an error message")
		case message.String() == errSeriesDoesNotExist:
			return NotFound, nil
		case message.String() == errSeriesAlreadyListed:
			return AlreadyTracked, nil
		}
		return 0, whttp.NewRequestError(req, res, "unrecognised rejection: "+message.String())
	}
	return 0, whttp.NewRequestError(req, res, "unexpected status")
}

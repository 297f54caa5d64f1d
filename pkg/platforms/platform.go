package platforms

import (
	"time"

	"github.com/mdsync/mdsync/pkg/throttle"
	"github.com/mdsync/mdsync/pkg/whttp"
)

// Options carries the plumbing every platform client needs: the HTTP
// session it talks through, the gate that spaces its calls out, and the
// base URLs it talks to.
type Options struct {
	Session *whttp.Session
	Gate    *throttle.Gate
	Proxy   string

	// BaseURL overrides the API root, AuthURL the login root. Both are
	// mostly useful in tests.
	BaseURL string
	AuthURL string

	// Clock is consulted for token expiry. Defaults to time.Now.
	Clock func() time.Time
}

type Option func(*Options)

func WithSession(s *whttp.Session) Option { return func(o *Options) { o.Session = s } }

func WithGate(g *throttle.Gate) Option { return func(o *Options) { o.Gate = g } }

// WithThreshold creates a dedicated gate with the given spacing.
func WithThreshold(d time.Duration) Option {
	return func(o *Options) { o.Gate = throttle.New(d) }
}

func WithProxy(proxy string) Option { return func(o *Options) { o.Proxy = proxy } }

func WithBaseURL(u string) Option { return func(o *Options) { o.BaseURL = u } }

func WithAuthURL(u string) Option { return func(o *Options) { o.AuthURL = u } }

func WithClock(now func() time.Time) Option { return func(o *Options) { o.Clock = now } }

// Resolve applies opts over the platform defaults.
func Resolve(defaults Options, opts ...Option) Options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.Session == nil {
		o.Session = whttp.NewSession(whttp.WithProxy(o.Proxy))
	}
	if o.Gate == nil {
		o.Gate = throttle.New(0)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

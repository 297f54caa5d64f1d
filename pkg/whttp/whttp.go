package whttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mdsync/mdsync/internal/utils"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultUserAgent = "mdsync/2 (+https://github.com/mdsync/mdsync)"
	defaultTimeout   = 60 * time.Second

	// maxBodySize caps how much of a response we keep around.
	maxBodySize = 1 << 20
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader

	// At most one of Body, JSON and Form should be set.
	Body string
	JSON any
	Form url.Values
}

type WHTTPRes struct {
	StatusCode int
	BodyString string
}

// Session is a cookie-aware HTTP client with headers that stick to every
// request sent through it, such as the bearer token of a logged in user.
type Session struct {
	client    *http.Client
	userAgent string

	mu      sync.RWMutex
	headers map[string]string
}

type Option func(*Session)

// WithHTTPClient replaces the underlying client. The cookie jar is only
// installed when the given client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

func WithUserAgent(ua string) Option {
	return func(s *Session) { s.userAgent = ua }
}

// WithProxy routes every request through the given proxy URL. An invalid
// URL is reported and requests go out directly.
func WithProxy(proxy string) Option {
	return func(s *Session) {
		if proxy == "" {
			return
		}
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			utils.Log.Warnf("Ignoring invalid proxy %q: %v", proxy, err)
			return
		}
		s.client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
}

func NewSession(opts ...Option) *Session {
	s := &Session{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		headers:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client.Jar == nil {
		// cookiejar.New never returns a non-nil error.
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		s.client.Jar = jar
	}
	return s
}

// SetHeader makes name: value part of every following request.
func (s *Session) SetHeader(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[name] = value
}

func (s *Session) Header(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers[name]
}

// Close releases pooled connections. It is safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	s.client.CloseIdleConnections()
	return nil
}

// Send performs the request and reads the whole (capped) body. Non-2xx
// statuses are not errors here; callers classify them.
func (s *Session) Send(ctx context.Context, wReq *WHTTPReq) (*WHTTPRes, error) {
	body, contentType, err := encodeBody(wReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, wReq.Method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	s.mu.RLock()
	for name, value := range s.headers {
		req.Header.Set(name, value)
	}
	s.mu.RUnlock()

	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", wReq.URL, err)
	}

	return &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
	}, nil
}

func encodeBody(wReq *WHTTPReq) (io.Reader, string, error) {
	switch {
	case wReq.JSON != nil:
		raw, err := json.Marshal(wReq.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body for %s: %w", wReq.URL, err)
		}
		return bytes.NewReader(raw), "application/json", nil
	case wReq.Form != nil:
		return strings.NewReader(wReq.Form.Encode()), "application/x-www-form-urlencoded", nil
	case wReq.Body != "":
		return strings.NewReader(wReq.Body), "", nil
	}
	return nil, "", nil
}

// RequestBody renders the body the way it was sent, for diagnostics.
func (wReq *WHTTPReq) RequestBody() string {
	switch {
	case wReq.JSON != nil:
		payload := wReq.JSON
		if m, ok := payload.(map[string]string); ok {
			redacted := make(map[string]string, len(m))
			for k, v := range m {
				if isSecret(k) {
					v = "***"
				}
				redacted[k] = v
			}
			payload = redacted
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", payload)
		}
		return string(raw)
	case wReq.Form != nil:
		redacted := url.Values{}
		for k, v := range wReq.Form {
			if isSecret(k) {
				redacted.Set(k, "***")
				continue
			}
			redacted[k] = v
		}
		return redacted.Encode()
	}
	return wReq.Body
}

func isSecret(key string) bool {
	return key == "password" || key == "client_secret"
}

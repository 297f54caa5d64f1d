package whttp

import (
	"fmt"
	"strings"
)

// RequestError reports a request whose response could not be accepted:
// an unexpected status, a malformed envelope or an error message nobody
// knows how to handle. It carries everything needed to diagnose the call.
type RequestError struct {
	Method       string
	URL          string
	StatusCode   int
	RequestBody  string
	ResponseBody string
	Reason       string
}

func NewRequestError(req *WHTTPReq, res *WHTTPRes, reason string) *RequestError {
	e := &RequestError{
		Method:      req.Method,
		URL:         req.URL,
		RequestBody: req.RequestBody(),
		Reason:      reason,
	}
	if res != nil {
		e.StatusCode = res.StatusCode
		e.ResponseBody = res.BodyString
	}
	return e
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString("request failed")
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	fmt.Fprintf(&b, "\n  URL: %s %s", e.Method, e.URL)
	fmt.Fprintf(&b, "\n  Status: %d", e.StatusCode)
	if e.RequestBody != "" {
		fmt.Fprintf(&b, "\n  Request: %s", e.RequestBody)
	}
	fmt.Fprintf(&b, "\n  Response: %s", e.ResponseBody)
	return b.String()
}

// Package httpegress implements the host side of a guest's HTTP client
// capability: outbound requests are proxied through the host, subject to
// the worker's configured allow-list policy.
package httpegress

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rafbgarcia/wws/internal/workerconfig"
)

// ErrorKind classifies why a guest's send_http_request call failed.
type ErrorKind string

const (
	InvalidRequest      ErrorKind = "InvalidRequest"
	InvalidRequestBody  ErrorKind = "InvalidRequestBody"
	InvalidResponseBody ErrorKind = "InvalidResponseBody"
	NotAllowed          ErrorKind = "NotAllowed"
	InternalError       ErrorKind = "InternalError"
	Timeout             ErrorKind = "Timeout"
	RedirectLoop        ErrorKind = "RedirectLoop"
)

// Error pairs an ErrorKind with a human-readable message, the shape
// returned to the guest as {error:true, type:..., message:...}.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// Header is one {name, value} pair, matching the guest-facing record
// shape (a list rather than a map, so duplicate header names survive).
type Header struct {
	Name  string
	Value string
}

// Request is the guest-observable outbound HTTP request record.
type Request struct {
	Method  string
	URI     string
	Headers []Header
	Body    []byte
}

// Response is the guest-observable HTTP response record.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

var allMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodOptions: true,
	http.MethodHead: true,
}

// Host implements send_http_request against the worker's allow-list
// policy, using a shared client across requests.
type Host struct {
	client *http.Client
}

// NewHost builds a Host with a bounded request timeout.
func NewHost() *Host {
	return &Host{client: &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}}
}

// Send performs req on behalf of a guest, enforcing policy first.
func (h *Host) Send(req Request, policy workerconfig.HTTPRequests) (Response, *Error) {
	if !allMethods[strings.ToUpper(req.Method)] {
		return Response{}, &Error{Kind: InvalidRequest, Message: "unsupported method " + req.Method}
	}

	parsed, err := url.Parse(req.URI)
	if err != nil {
		return Response{}, &Error{Kind: InvalidRequest, Message: "invalid uri: " + err.Error()}
	}

	if violation := checkPolicy(parsed, req.Method, policy); violation != "" {
		return Response{}, &Error{Kind: NotAllowed, Message: violation}
	}

	httpReq, err := http.NewRequest(strings.ToUpper(req.Method), req.URI, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, &Error{Kind: InvalidRequestBody, Message: err.Error()}
	}
	for _, hd := range req.Headers {
		httpReq.Header.Add(hd.Name, hd.Value)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok {
			if urlErr.Timeout() {
				return Response{}, &Error{Kind: Timeout, Message: err.Error()}
			}
			if strings.Contains(urlErr.Error(), "stopped after") {
				return Response{}, &Error{Kind: RedirectLoop, Message: err.Error()}
			}
		}
		return Response{}, &Error{Kind: InternalError, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &Error{Kind: InvalidResponseBody, Message: err.Error()}
	}

	var headers []Header
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, Header{Name: name, Value: v})
		}
	}

	return Response{Status: resp.StatusCode, Headers: headers, Body: body}, nil
}

// checkPolicy returns a non-empty violation description if req violates
// policy, or "" if it's allowed. An empty AllowedHosts list denies every
// host (deny-all default); an empty AllowedMethods list denies every
// method.
func checkPolicy(u *url.URL, method string, policy workerconfig.HTTPRequests) string {
	if policy.ForceHTTPS && u.Scheme != "https" {
		return "scheme " + u.Scheme + " not allowed: https required"
	}
	if !containsFold(policy.AllowedHosts, u.Host) {
		return "host " + u.Host + " not in allowed_hosts"
	}
	if !containsFold(policy.AllowedMethods, strings.ToUpper(method)) {
		return "method " + method + " not in allowed_methods"
	}
	return ""
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

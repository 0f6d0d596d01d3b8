// Package transport decorates an HTTP transport with sandbox
// credential injection and error normalization.
//
// Every outbound request gets the current session's bearer token in
// its Authorization header with no caller-visible way to omit it;
// centralizing the injection here means a new gateway endpoint can
// never ship an unauthenticated call. The transport is stateless
// across calls: no retry, no backoff. Retry policy, if any, belongs
// to the caller.
package transport

import (
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/sandboxui/bridge/internal/shared/errs"
)

// TokenSource supplies the current bearer credential. Token refresh is
// external; the source is consulted on every request so a refreshed
// credential takes effect without rebuilding the client.
type TokenSource func() string

// AuthTransport is an http.RoundTripper that injects the session
// credential into every request it forwards.
type AuthTransport struct {
	Base   http.RoundTripper
	Source TokenSource
}

// New wraps base with credential injection. A nil base falls back to
// http.DefaultTransport.
func New(base http.RoundTripper, source TokenSource) *AuthTransport {
	return &AuthTransport{Base: base, Source: source}
}

// RoundTrip attaches the Authorization header and forwards the
// request. The request is cloned first; RoundTrippers must not mutate
// their argument.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.Source != nil {
		if token := t.Source(); token != "" {
			clone.Header.Set("Authorization", "Bearer "+token)
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// wireError is the backend's structured error body. FastAPI-style
// backends put the message under "detail"; others use "message".
type wireError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Code    string `json:"code"`
}

// DecodeError turns a non-2xx response body into the taxonomy error
// for its status. An unparseable or empty body yields the synthetic
// {"transport error", "unknown"} substitute.
func DecodeError(status int, body []byte) *errs.Error {
	kind := errs.KindFromStatus(status)

	var w wireError
	if err := sonic.Unmarshal(body, &w); err != nil {
		return errs.Synthetic(kind)
	}
	message := w.Message
	if message == "" {
		message = w.Detail
	}
	if message == "" {
		return errs.Synthetic(kind)
	}
	e := errs.New(kind, message)
	if w.Code != "" {
		e = e.WithCode(w.Code)
	}
	return e
}

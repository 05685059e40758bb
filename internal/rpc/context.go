/**
 * @description
 * Per-request procedure context. A Context is built once per HTTP request (or
 * Lambda invocation) and shared by every procedure of a batch, so the identity
 * is resolved at most once and cookies set by any procedure reach the client.
 */
package rpc

import (
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/goalpath/planner-api/internal/domain"
)

// Transport exposes the credential-bearing parts of the inbound request.
type Transport interface {
	Header(name string) string
	Cookie(name string) (string, bool)
}

// HTTPTransport wraps a request served by the long-running server.
type HTTPTransport struct {
	Request  *http.Request
	Response http.ResponseWriter
}

func (t HTTPTransport) Header(name string) string {
	if t.Request == nil {
		return ""
	}
	return t.Request.Header.Get(name)
}

func (t HTTPTransport) Cookie(name string) (string, bool) {
	if t.Request == nil {
		return "", false
	}
	c, err := t.Request.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// LambdaTransport wraps an API Gateway HTTP API invocation.
type LambdaTransport struct {
	Event         *events.APIGatewayV2HTTPRequest
	LambdaContext *lambdacontext.LambdaContext
}

func (t LambdaTransport) Header(name string) string {
	if t.Event == nil {
		return ""
	}
	for k, v := range t.Event.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Cookie reads the event's cookies array, which API Gateway v2 fills instead
// of a Cookie header.
func (t LambdaTransport) Cookie(name string) (string, bool) {
	if t.Event == nil {
		return "", false
	}
	lines := t.Event.Cookies
	if len(lines) == 0 {
		if raw := t.Header("Cookie"); raw != "" {
			lines = []string{raw}
		}
	}
	for _, line := range lines {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == name {
				return c.Value, true
			}
		}
	}
	return "", false
}

// Context is the per-request procedure context.
type Context struct {
	Transport Transport
	User      *domain.Identity
	RequestID string

	header  http.Header
	cookies []*http.Cookie
}

// NewContext returns an unauthenticated context with empty accumulators.
func NewContext(t Transport) *Context {
	return &Context{Transport: t, header: http.Header{}}
}

// SetCookie queues a Set-Cookie for the response. A later cookie with the same
// name replaces an earlier one.
func (c *Context) SetCookie(cookie *http.Cookie) {
	for i, existing := range c.cookies {
		if existing.Name == cookie.Name {
			c.cookies[i] = cookie
			return
		}
	}
	c.cookies = append(c.cookies, cookie)
}

// Cookies returns the queued cookies in the order they were first set.
func (c *Context) Cookies() []*http.Cookie {
	return c.cookies
}

// ResponseHeader is the accumulator for extra response headers.
func (c *Context) ResponseHeader() http.Header {
	return c.header
}

/**
 * @description
 * Bridges API Gateway HTTP API (payload v2) invocations onto a net/http
 * handler so the Lambda deployment serves through the same router, CORS and
 * cookie handling as the long-running server.
 */
package lambdahttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

type eventKey struct{}

// WithEvent stores the originating invocation event on ctx.
func WithEvent(ctx context.Context, event *events.APIGatewayV2HTTPRequest) context.Context {
	return context.WithValue(ctx, eventKey{}, event)
}

// EventFromContext returns the invocation event when the request arrived via Lambda.
func EventFromContext(ctx context.Context) (*events.APIGatewayV2HTTPRequest, bool) {
	event, ok := ctx.Value(eventKey{}).(*events.APIGatewayV2HTTPRequest)
	return event, ok && event != nil
}

// NewRequest converts an invocation event into an *http.Request whose context
// carries the event.
func NewRequest(ctx context.Context, event *events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	method := event.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	path := event.RawPath
	if path == "" {
		path = event.RequestContext.HTTP.Path
	}
	if stage := event.RequestContext.Stage; stage != "" && stage != "$default" {
		path = strings.TrimPrefix(path, "/"+stage)
	}
	if path == "" {
		path = "/"
	}

	u := &url.URL{Path: path, RawQuery: event.RawQueryString}
	if u.RawQuery == "" && len(event.QueryStringParameters) > 0 {
		q := url.Values{}
		for k, v := range event.QueryStringParameters {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}

	req, err := http.NewRequestWithContext(WithEvent(ctx, event), method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range event.Headers {
		req.Header.Set(k, v)
	}
	if len(event.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(event.Cookies, "; "))
	}
	req.Host = event.RequestContext.DomainName
	if req.Host == "" {
		req.Host = req.Header.Get("Host")
	}
	req.RemoteAddr = event.RequestContext.HTTP.SourceIP
	req.RequestURI = u.RequestURI()
	return req, nil
}

// responseWriter buffers a handler's response for conversion.
type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: http.Header{}}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *responseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *responseWriter) toEvent() events.APIGatewayV2HTTPResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{},
	}
	for key, values := range w.header {
		if strings.EqualFold(key, "Set-Cookie") {
			resp.Cookies = append(resp.Cookies, values...)
			continue
		}
		if len(values) == 1 {
			resp.Headers[key] = values[0]
			continue
		}
		if resp.MultiValueHeaders == nil {
			resp.MultiValueHeaders = map[string][]string{}
		}
		resp.MultiValueHeaders[key] = values
	}
	if isTextual(w.header.Get("Content-Type")) {
		resp.Body = w.body.String()
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(w.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript")
}

// Handler adapts h into a Lambda handler function for lambda.Start.
func Handler(h http.Handler) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		req, err := NewRequest(ctx, &event)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"error":{"message":"Malformed request"}}`,
			}, nil
		}
		w := newResponseWriter()
		h.ServeHTTP(w, req)
		return w.toEvent(), nil
	}
}

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/lambdahttp"
)

const maxBodyBytes = 1 << 20

// Kind distinguishes read procedures from writes.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// Handler executes one procedure with its raw JSON input.
type Handler func(ctx context.Context, rc *Context, input json.RawMessage) (any, error)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

type procedure struct {
	kind    Kind
	handler Handler
}

// Router dispatches /<procedure> requests in the tRPC HTTP wire format.
type Router struct {
	procedures map[string]procedure
	logger     *zap.Logger
}

// NewRouter returns an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{procedures: map[string]procedure{}, logger: logger}
}

// Query registers a read procedure.
func (r *Router) Query(name string, h Handler, mws ...Middleware) {
	r.register(name, KindQuery, h, mws)
}

// Mutation registers a write procedure. Mutations are only reachable via POST.
func (r *Router) Mutation(name string, h Handler, mws ...Middleware) {
	r.register(name, KindMutation, h, mws)
}

func (r *Router) register(name string, kind Kind, h Handler, mws []Middleware) {
	if _, exists := r.procedures[name]; exists {
		panic(fmt.Sprintf("rpc: procedure %q registered twice", name))
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	r.procedures[name] = procedure{kind: kind, handler: h}
}

// Procedures lists the registered procedure names in sorted order.
func (r *Router) Procedures() []string {
	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Typed adapts a function taking a decoded input into a Handler. Inputs that
// implement domain.Validator are validated before fn runs.
func Typed[In any, Out any](fn func(ctx context.Context, rc *Context, in In) (Out, error)) Handler {
	return func(ctx context.Context, rc *Context, raw json.RawMessage) (any, error) {
		var in In
		if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, apperr.BadRequest("Invalid input: " + err.Error())
			}
		}
		if v, ok := any(in).(domain.Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		return fn(ctx, rc, in)
	}
}

// NoInput is the input type of procedures that take none.
type NoInput struct{}

type errorData struct {
	Code       apperr.Code `json:"code"`
	HTTPStatus int         `json:"httpStatus"`
	Path       string      `json:"path"`
}

type errorShape struct {
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Data    errorData `json:"data"`
}

type envelope struct {
	Result *resultShape `json:"result,omitempty"`
	Error  *errorShape  `json:"error,omitempty"`
}

type resultShape struct {
	Data any `json:"data"`
}

// ServeHTTP expects the request path to be the procedure name(s), with any
// mount prefix already stripped.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rc := NewContext(transportFor(w, req))
	rc.RequestID = middleware.GetReqID(req.Context())

	paths := strings.Trim(req.URL.Path, "/")
	batch := req.URL.Query().Get("batch") == "1"

	names := []string{paths}
	if batch {
		names = strings.Split(paths, ",")
	}

	inputs, inputErr := readInputs(req, batch)

	envelopes := make([]envelope, len(names))
	statuses := make([]int, len(names))
	for i, name := range names {
		var out any
		var err error
		if inputErr != nil {
			err = inputErr
		} else {
			out, err = r.call(req.Context(), rc, req.Method, name, inputs[fmt.Sprint(i)])
		}
		if err != nil {
			appErr := apperr.From(err)
			if appErr.Code == apperr.CodeInternal {
				r.logger.Error("procedure failed",
					zap.String("path", name),
					zap.String("request_id", rc.RequestID),
					zap.Error(err),
				)
			}
			envelopes[i] = envelope{Error: &errorShape{
				Message: appErr.Message,
				Code:    appErr.RPCCode(),
				Data:    errorData{Code: appErr.Code, HTTPStatus: appErr.HTTPStatus(), Path: name},
			}}
			statuses[i] = appErr.HTTPStatus()
			continue
		}
		envelopes[i] = envelope{Result: &resultShape{Data: out}}
		statuses[i] = http.StatusOK
	}

	for key, values := range rc.ResponseHeader() {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	for _, c := range rc.Cookies() {
		http.SetCookie(w, c)
	}
	w.Header().Set("Content-Type", "application/json")

	var body any = envelopes[0]
	if batch {
		body = envelopes
	}
	payload, err := json.Marshal(body)
	if err != nil {
		r.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(batchStatus(statuses))
	_, _ = w.Write(payload)
}

func (r *Router) call(ctx context.Context, rc *Context, method, name string, input json.RawMessage) (out any, err error) {
	proc, ok := r.procedures[name]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("No procedure found on path %q", name))
	}
	switch method {
	case http.MethodPost:
	case http.MethodGet:
		if proc.kind == KindMutation {
			return nil, apperr.New(apperr.CodeMethodNotSupported,
				fmt.Sprintf("Unsupported GET-request to mutation procedure at path %q", name), nil)
		}
	default:
		return nil, apperr.New(apperr.CodeMethodNotSupported,
			fmt.Sprintf("Unsupported %s-request to %s procedure at path %q", method, proc.kind, name), nil)
	}

	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = apperr.Internal("Internal server error", fmt.Errorf("panic: %v", p))
		}
	}()
	return proc.handler(ctx, rc, input)
}

// readInputs returns inputs keyed by batch index ("0" for a single call).
func readInputs(req *http.Request, batch bool) (map[string]json.RawMessage, error) {
	var raw []byte
	switch req.Method {
	case http.MethodGet:
		raw = []byte(req.URL.Query().Get("input"))
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
		if err != nil {
			return nil, apperr.BadRequest("Failed to read request body")
		}
		if len(body) > maxBodyBytes {
			return nil, apperr.BadRequest("Request body too large")
		}
		raw = body
	default:
		return map[string]json.RawMessage{}, nil
	}

	if !batch {
		return map[string]json.RawMessage{"0": raw}, nil
	}
	inputs := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return inputs, nil
	}
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, apperr.BadRequest("Batch input must be an object keyed by call index")
	}
	return inputs, nil
}

// batchStatus is the common status of all calls, or 207 when they differ.
func batchStatus(statuses []int) int {
	if len(statuses) == 0 {
		return http.StatusOK
	}
	first := statuses[0]
	for _, s := range statuses[1:] {
		if s != first {
			return http.StatusMultiStatus
		}
	}
	return first
}

func transportFor(w http.ResponseWriter, req *http.Request) Transport {
	if event, ok := lambdahttp.EventFromContext(req.Context()); ok {
		lc, _ := lambdacontext.FromContext(req.Context())
		return LambdaTransport{Event: event, LambdaContext: lc}
	}
	return HTTPTransport{Request: req, Response: w}
}

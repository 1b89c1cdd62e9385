package span

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/spanerr"
)

type HTTPMetadata struct {
	Request  HTTPRequest   `json:"request"`
	Response *HTTPResponse `json:"response,omitempty"`
}

type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

func (HTTPMetadata) SpanType() Type { return TypeHTTP }

var (
	httpMethodKeys = []attribute.Key{attrs.HTTPRequestMethod, attrs.HTTPMethod}
	httpURLKeys    = []attribute.Key{attrs.URLFull, attrs.HTTPURL, attrs.HTTPRequestURL}
	httpStatusKeys = []attribute.Key{attrs.HTTPResponseStatusCode, attrs.HTTPStatusCode}
)

type httpSpec struct{}

func (httpSpec) Name() string        { return "HTTP" }
func (httpSpec) Description() string { return "An HTTP request" }
func (httpSpec) IsGenAI() bool       { return false }

func (httpSpec) Process(_ context.Context, args Args) (Metadata, error) {
	bag := args.Attributes

	method, ok := attrs.String(bag, httpMethodKeys...)
	if !ok {
		return nil, spanerr.Unprocessable("http request method is required")
	}
	url, ok := attrs.String(bag, httpURLKeys...)
	if !ok {
		return nil, spanerr.Unprocessable("http request url is required")
	}
	requestBody, _ := stringValue(bag, attrs.HTTPRequestBody)

	meta := &HTTPMetadata{Request: HTTPRequest{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers(attrs.ByPrefix(bag, attrs.HTTPRequestHeader)),
		Body:    requestBody,
	}}

	status, ok := statusCode(bag)
	if !ok {
		if args.Status == StatusError {
			return meta, nil
		}
		return nil, spanerr.Unprocessable("http response status code is required")
	}
	responseBody, _ := stringValue(bag, attrs.HTTPResponseBody)
	meta.Response = &HTTPResponse{
		Status:  status,
		Headers: headers(attrs.ByPrefix(bag, attrs.HTTPResponseHeader)),
		Body:    responseBody,
	}
	return meta, nil
}

// statusCode returns the first status attribute inside the 100-599 range.
// Out of range values are skipped like missing ones.
func statusCode(bag attrs.Bag) (int, bool) {
	value, ok := attrs.Extract(bag, httpStatusKeys, attrs.WithSerializer(func(v any) (any, bool) {
		return attrs.CoerceInt64(v)
	}), attrs.WithValidation(func(v any) bool {
		code, ok := v.(int64)
		return ok && code >= 100 && code <= 599
	}))
	if !ok {
		return 0, false
	}
	return int(value.(int64)), true
}

// headers flattens header attributes. Multi valued headers are joined with
// ", " in recorded order.
func headers(bag attrs.Bag) map[string]string {
	out := make(map[string]string, len(bag))
	names := make([]string, 0, len(bag))
	for name := range bag {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := headerValue(bag[name])
		if value == "" {
			continue
		}
		out[strings.ToLower(name)] = value
	}
	return out
}

func headerValue(raw any) string {
	items, ok := raw.([]any)
	if !ok {
		value, _ := attrs.Stringify(raw)
		return value
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if value, ok := attrs.Stringify(item); ok && value != "" {
			values = append(values, value)
		}
	}
	return strings.Join(values, ", ")
}

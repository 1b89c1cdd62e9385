// Package ingest validates submitted spans, runs them through the span
// specifications, and hands the resulting records to the span writer.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ongoingai/tracelens/internal/attrs"
	"github.com/ongoingai/tracelens/internal/span"
)

const maxAttributeDepth = 8

var ErrEmptyBatch = errors.New("no spans in request")

// RawSpan is the JSON envelope of one submitted span.
type RawSpan struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	Name          string         `json:"name"`
	Kind          string         `json:"kind,omitempty"`
	Type          string         `json:"type,omitempty"`
	Status        string         `json:"status,omitempty"`
	StatusMessage string         `json:"status_message,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Scope         span.Scope     `json:"scope"`
	Attributes    map[string]any `json:"attributes"`
}

type envelope struct {
	Spans []RawSpan `json:"spans"`
}

// DecodeSpans reads either {"spans": [...]} or a bare JSON array of spans.
func DecodeSpans(r io.Reader) ([]RawSpan, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read spans: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyBatch
	}

	var spans []RawSpan
	if body[0] == '[' {
		if err := json.Unmarshal(body, &spans); err != nil {
			return nil, fmt.Errorf("decode spans: %w", err)
		}
	} else {
		var payload envelope
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode spans: %w", err)
		}
		spans = payload.Spans
	}
	if len(spans) == 0 {
		return nil, ErrEmptyBatch
	}
	return spans, nil
}

// Validate checks the envelope fields the store depends on. It does not look
// at attributes.
func (r RawSpan) Validate() error {
	if strings.TrimSpace(r.TraceID) == "" {
		return errors.New("trace_id is required")
	}
	if strings.TrimSpace(r.SpanID) == "" {
		return errors.New("span_id is required")
	}
	if r.Type != "" {
		if _, ok := span.ParseType(r.Type); !ok {
			return fmt.Errorf("unknown span type %q", r.Type)
		}
	}
	if !r.StartTime.IsZero() && !r.EndTime.IsZero() && r.EndTime.Before(r.StartTime) {
		return errors.New("end_time is before start_time")
	}
	return nil
}

// Bag returns the attributes as a flat bag. Nested objects are flattened
// into dotted keys; arrays are kept as values.
func (r RawSpan) Bag() attrs.Bag {
	bag := make(attrs.Bag, len(r.Attributes))
	flattenInto(bag, "", r.Attributes, 0)
	return bag
}

// ResolveType returns the explicit type when one was submitted and the type
// inferred from the attributes otherwise.
func (r RawSpan) ResolveType(bag attrs.Bag) span.Type {
	if spanType, ok := span.ParseType(r.Type); ok {
		return spanType
	}
	return span.DetermineType(bag)
}

func flattenInto(bag attrs.Bag, prefix string, fields map[string]any, depth int) {
	for key, value := range fields {
		if prefix != "" {
			key = prefix + "." + key
		}
		nested, ok := value.(map[string]any)
		if !ok || depth >= maxAttributeDepth {
			bag[key] = value
			continue
		}
		flattenInto(bag, key, nested, depth+1)
	}
}

//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ResultKind tags which variant a Result holds.
type ResultKind int

const (
	// ResultAbsent means no result has been written yet.
	ResultAbsent ResultKind = iota
	// ResultStructured holds syntactically valid JSON.
	ResultStructured
	// ResultText holds opaque text (including failure descriptions).
	ResultText
)

// String implements fmt.Stringer.
func (k ResultKind) String() string {
	switch k {
	case ResultStructured:
		return "structured"
	case ResultText:
		return "text"
	default:
		return "absent"
	}
}

// Result is a job's output. The variant is decided once, when the result is written,
// so readers never re-parse ambiguous text.
type Result struct {
	kind       ResultKind
	structured json.RawMessage
	text       string
}

// NewResult classifies task output: valid JSON becomes a structured result,
// anything else is kept as text.
func NewResult(output string) Result {
	trimmed := bytes.TrimSpace([]byte(output))
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return Result{kind: ResultStructured, structured: json.RawMessage(trimmed)}
	}
	return TextResult(output)
}

// TextResult returns a text result regardless of the content.
func TextResult(text string) Result {
	return Result{kind: ResultText, text: text}
}

// Kind reports the variant held by r.
func (r Result) Kind() ResultKind {
	return r.kind
}

// IsAbsent reports whether no result has been written.
func (r Result) IsAbsent() bool {
	return r.kind == ResultAbsent
}

// Structured returns the JSON document for structured results, nil otherwise.
func (r Result) Structured() json.RawMessage {
	if r.kind != ResultStructured {
		return nil
	}
	return r.structured
}

// Text returns the text for text results, empty otherwise.
func (r Result) Text() string {
	if r.kind != ResultText {
		return ""
	}
	return r.text
}

// MarshalJSON renders structured results inline, text as a JSON string and absent results as null.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case ResultStructured:
		return r.structured, nil
	case ResultText:
		return json.Marshal(r.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reverses MarshalJSON for API clients: null is absent, a JSON
// string is text and any other value is structured.
func (r *Result) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*r = Result{}
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*r = TextResult(s)
	default:
		if !json.Valid(trimmed) {
			return errors.New("result is not valid JSON")
		}
		raw := make(json.RawMessage, len(trimmed))
		copy(raw, trimmed)
		*r = Result{kind: ResultStructured, structured: raw}
	}
	return nil
}

func (r Result) clone() Result {
	if r.structured == nil {
		return r
	}
	raw := make(json.RawMessage, len(r.structured))
	copy(raw, r.structured)
	r.structured = raw
	return r
}

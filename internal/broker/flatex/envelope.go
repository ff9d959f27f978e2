package flatex

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EnvelopeError is the recursive error node carried by every response.
type EnvelopeError struct {
	Code   string          `json:"code"`
	Text   string          `json:"text"`
	Errors []EnvelopeError `json:"errors,omitempty"`
}

// Effective returns the error that describes the failure, or nil on success.
// A failing node with failing children is described by its first child,
// recursively; the walk stops at the first node without a failing first child.
func (e *EnvelopeError) Effective() *EnvelopeError {
	if e == nil || e.Code == CodeOK {
		return nil
	}

	node := e
	for len(node.Errors) > 0 && node.Errors[0].Code != CodeOK {
		node = &node.Errors[0]
	}
	return node
}

// asError converts the effective error, if any, to a domain failure.
func (e *EnvelopeError) asError() error {
	eff := e.Effective()
	if eff == nil {
		return nil
	}
	return &Error{Code: eff.Code, Text: eff.Text}
}

// Response is the envelope shared by all responses.
type Response struct {
	Error *EnvelopeError `json:"error"`
}

func (r *Response) envelope() *Response { return r }

func (r *Response) validate(v *validator) {
	v.envelope("error", r.Error)
}

// response is implemented by every typed response.
type response interface {
	envelope() *Response
	validate(v *validator)
}

// nestedEnvelope is implemented by responses wrapping a second envelope.
type nestedEnvelope interface {
	nestedError() *EnvelopeError
}

// decode turns a raw body into out, or returns the domain or decode failure it represents.
func decode(body []byte, out response) error {
	complaint := unmarshalAndValidate(body, out)
	if complaint == nil {
		if err := out.envelope().Error.asError(); err != nil {
			return err
		}
		if n, ok := out.(nestedEnvelope); ok {
			return n.nestedError().asError()
		}
		return nil
	}

	// The body may still be a well-formed error envelope without the payload.
	var bare Response
	if unmarshalAndValidate(body, &bare) == nil {
		if err := bare.Error.asError(); err != nil {
			return err
		}
	}

	return &DecodeError{Message: complaint.Error()}
}

func unmarshalAndValidate(body []byte, out response) error {
	if err := json.Unmarshal(body, out); err != nil {
		return describeJSONError(err)
	}
	v := &validator{}
	out.validate(v)
	return v.err
}

// describeJSONError renders encoding/json errors the way validation complaints read.
func describeJSONError(err error) error {
	switch e := err.(type) {
	case *json.UnmarshalTypeError:
		field := e.Field
		if field == "" {
			field = "<root>"
		}
		return fmt.Errorf("%s: expected %s, got %s", field, e.Type, e.Value)
	case *json.SyntaxError:
		return fmt.Errorf("invalid JSON at offset %d: %v", e.Offset, e)
	default:
		return err
	}
}

// validator records the first structural complaint.
type validator struct {
	path []string
	err  error
}

func (v *validator) fail(field, format string, args ...any) {
	if v.err != nil {
		return
	}
	name := strings.Join(append(append([]string{}, v.path...), field), ".")
	v.err = fmt.Errorf("%s: %s", name, fmt.Sprintf(format, args...))
}

func (v *validator) require(field string, present bool) {
	if !present {
		v.fail(field, "required")
	}
}

func (v *validator) nested(field string, fn func()) {
	if v.err != nil {
		return
	}
	v.path = append(v.path, field)
	fn()
	v.path = v.path[:len(v.path)-1]
}

func (v *validator) envelope(field string, e *EnvelopeError) {
	if e == nil {
		v.require(field, false)
		return
	}
	v.nested(field, func() {
		v.require("code", e.Code != "")
		for i := range e.Errors {
			v.envelope(fmt.Sprintf("errors[%d]", i), &e.Errors[i])
		}
	})
}

// Timestamp is an ISO-8601 timestamp as sent by the brokerage.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements custom unmarshaling for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// MarshalJSON implements custom marshaling for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

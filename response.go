package gqlmap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/giuseppesec/gqlmap/qerrors"
)

// Response represents a typical response of a GraphQL server. The Data slot is
// kept raw: probing code cares about presence and shape, not about decoding
// into application types.
type Response struct {
	Data       json.RawMessage   `json:"data,omitempty"`
	Errors     qerrors.ErrorList `json:"errors,omitempty"`
	Extensions json.RawMessage   `json:"extensions,omitempty"`
}

func NewResponse() *Response {
	return &Response{}
}

// HasData reports whether a data payload was present at all, even if null.
func (r *Response) HasData() bool {
	return len(r.Data) > 0
}

// DataIsNull reports whether the data payload was present but null.
func (r *Response) DataIsNull() bool {
	return bytes.Equal(bytes.TrimSpace(r.Data), []byte("null"))
}

// DataField returns the raw value of a top level field of the data payload.
func (r *Response) DataField(name string) (json.RawMessage, bool) {
	if !r.HasData() || r.DataIsNull() {
		return nil, false
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(r.Data, &fields); err != nil {
		return nil, false
	}
	value, ok := fields[name]
	return value, ok
}

func (r *Response) Error() error {
	return r.Errors.Error()
}

func (r *Response) AddError(err error) *Response {
	r.Errors = qerrors.AppendErrors(r.Errors, err)
	return r
}

func (r *Response) String() string {
	return fmt.Sprintf("{Data: %s, Errors: %v}", string(r.Data), r.Errors)
}

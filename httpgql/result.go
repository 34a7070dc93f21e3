package httpgql

import (
	"encoding/json"

	"github.com/giuseppesec/gqlmap"
)

// ProbeResult is the normalized outcome of one probe round trip. HTTP errors
// and GraphQL errors live inside it; the classifier decides what they mean
// for the hypothesis under test.
type ProbeResult struct {
	// Status is the HTTP status code, whatever it was.
	Status int
	// Probe names the probe that produced the request, for reporting.
	Probe string
	// Curl reproduces the request for the operator.
	Curl string
	// Raw is the response body as received.
	Raw []byte
	// Response is the decoded GraphQL response, nil when the body was not a
	// JSON object. Batch responses also leave it nil; see BatchLen.
	Response *gqlmap.Response

	malformed bool
	batchLen  int
}

// Decode parses Raw into Response. The client calls it after every round
// trip; it is exported so synthetic results can be built in tests and by
// callers replaying stored bodies.
func (r *ProbeResult) Decode() {
	// A JSON array is a batch response.
	var batch []json.RawMessage
	if err := json.Unmarshal(r.Raw, &batch); err == nil {
		r.batchLen = len(batch)
		return
	}
	response := gqlmap.Response{}
	if err := json.Unmarshal(r.Raw, &response); err != nil {
		r.malformed = true
		return
	}
	r.Response = &response
}

// Malformed reports that the body could not be interpreted as a GraphQL
// response. The classifier maps this to AMBIGUOUS.
func (r *ProbeResult) Malformed() bool {
	return r.malformed
}

// BatchLen returns the number of entries when the server answered with a
// JSON array, zero otherwise.
func (r *ProbeResult) BatchLen() int {
	return r.batchLen
}

func (r *ProbeResult) HasData() bool {
	return r.Response != nil && r.Response.HasData()
}

func (r *ProbeResult) DataIsNull() bool {
	return r.Response != nil && r.Response.DataIsNull()
}

func (r *ProbeResult) DataField(name string) (json.RawMessage, bool) {
	if r.Response == nil {
		return nil, false
	}
	return r.Response.DataField(name)
}

// ErrorMessages returns the wire error messages, empty when there were none.
func (r *ProbeResult) ErrorMessages() []string {
	if r.Response == nil {
		return nil
	}
	return r.Response.Errors.Messages()
}

// FirstErrorExtensions returns the extensions map of the first error, which
// is where servers hide stack traces and tracing payloads.
func (r *ProbeResult) FirstErrorExtensions() map[string]interface{} {
	if r.Response == nil || len(r.Response.Errors) == 0 {
		return nil
	}
	return r.Response.Errors[0].Extensions
}

package gqlmap

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Request is the standard GraphQL-over-HTTP request body.
type Request struct {
	Query         string `json:"query,omitempty"`
	OperationName string `json:"operationName,omitempty"`
	// Variables can be set to a json.RawMessage or a map[string]interface{}
	Variables interface{} `json:"variables,omitempty"`
}

func (r *Request) VariablesAsJson() (json.RawMessage, error) {
	if r.Variables == nil {
		return nil, nil
	}
	switch variables := r.Variables.(type) {
	case map[string]interface{}:
		return json.Marshal(variables)
	case json.RawMessage:
		return variables, nil
	}
	return nil, fmt.Errorf("unsupported type: %s", reflect.TypeOf(r.Variables))
}

package scan

import (
	"context"
	"strings"
)

// Introspection reports whether the full introspection query is allowed.
type Introspection struct{}

func (c *Introspection) Name() string        { return "introspection" }
func (c *Introspection) Title() string       { return "Introspection Enabled" }
func (c *Introspection) Description() string { return "Full schema introspection query allowed" }
func (c *Introspection) Impact() string {
	return "Information disclosure - complete API schema exposed"
}
func (c *Introspection) Severity() Severity { return SeverityHigh }

func (c *Introspection) Run(ctx context.Context, target *Target) (*Result, error) {
	result, err := target.Client.Post(ctx, "query { __schema { types { name fields { name } } } }", nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := false
	if raw, ok := result.DataField("__schema"); ok {
		vulnerable = strings.Contains(string(raw), `"name"`)
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

// IDEExposed reports whether the endpoint serves an interactive GraphQL IDE
// to browsers.
type IDEExposed struct{}

func (c *IDEExposed) Name() string        { return "graphiql" }
func (c *IDEExposed) Title() string       { return "GraphQL IDE Exposed" }
func (c *IDEExposed) Description() string { return "GraphQL development IDE accessible in production" }
func (c *IDEExposed) Impact() string {
	return "Information disclosure - interactive query interface exposed"
}
func (c *IDEExposed) Severity() Severity { return SeverityLow }

var ideIndicators = []string{
	"GraphQL Playground",
	"GraphiQL",
	"graphql-playground",
	"graphiql.min.js",
	"graphiql.css",
	"apollo-server",
	"graphql-yoga",
	"altair-static",
}

func (c *IDEExposed) Run(ctx context.Context, target *Target) (*Result, error) {
	_, body, err := target.Client.GetHTML(ctx, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := false
	for _, indicator := range ideIndicators {
		if strings.Contains(body, indicator) {
			vulnerable = true
			break
		}
	}
	return resultFor(c, vulnerable, "curl -H 'Accept: text/html' '"+target.Client.URL+"'"), nil
}

// FieldSuggestions reports whether validation errors volunteer "did you
// mean" hints, the leak the inference engine itself feeds on.
type FieldSuggestions struct{}

func (c *FieldSuggestions) Name() string        { return "field_suggestions" }
func (c *FieldSuggestions) Title() string       { return "Field Suggestions Enabled" }
func (c *FieldSuggestions) Description() string { return "Error messages suggest valid field names" }
func (c *FieldSuggestions) Impact() string      { return "Information disclosure - schema hints in errors" }
func (c *FieldSuggestions) Severity() Severity  { return SeverityLow }

func (c *FieldSuggestions) Run(ctx context.Context, target *Target) (*Result, error) {
	// Misspelled meta field, close enough to draw a suggestion.
	result, err := target.Client.Post(ctx, "query { __schema { directive } }", nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := false
	for _, msg := range result.ErrorMessages() {
		if strings.Contains(strings.ToLower(msg), "did you mean") {
			vulnerable = true
			break
		}
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

// TraceMode reports whether responses carry an apollo-style tracing payload.
type TraceMode struct{}

func (c *TraceMode) Name() string        { return "trace_mode" }
func (c *TraceMode) Title() string       { return "Tracing Enabled" }
func (c *TraceMode) Description() string { return "Debug tracing information in responses" }
func (c *TraceMode) Impact() string      { return "Information disclosure - execution traces exposed" }
func (c *TraceMode) Severity() Severity  { return SeverityInfo }

func (c *TraceMode) Run(ctx context.Context, target *Target) (*Result, error) {
	result, err := target.Client.Post(ctx, "query { __typename }", nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := result.Response != nil && strings.Contains(string(result.Response.Extensions), `"tracing"`)
	return resultFor(c, vulnerable, result.Curl), nil
}

// UnhandledErrors reports whether a broken query leaks exception details.
type UnhandledErrors struct{}

func (c *UnhandledErrors) Name() string        { return "unhandled_errors" }
func (c *UnhandledErrors) Title() string       { return "Unhandled Errors Exposed" }
func (c *UnhandledErrors) Description() string { return "Exception details visible in error responses" }
func (c *UnhandledErrors) Impact() string {
	return "Information disclosure - stack traces or internal details"
}
func (c *UnhandledErrors) Severity() Severity { return SeverityInfo }

func (c *UnhandledErrors) Run(ctx context.Context, target *Target) (*Result, error) {
	// Not a valid operation; a lenient server will throw past its handler.
	result, err := target.Client.Post(ctx, "qwerty { abc }", nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := false
	if ext := result.FirstErrorExtensions(); ext != nil {
		_, hasException := ext["exception"]
		_, hasStacktrace := ext["stacktrace"]
		vulnerable = hasException || hasStacktrace
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

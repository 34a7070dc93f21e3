package scan

import (
	"context"
	"strings"
)

// GetQuery reports whether queries execute over GET, which makes them
// triggerable from a plain <img> or link on a foreign origin.
type GetQuery struct{}

func (c *GetQuery) Name() string        { return "get_query_support" }
func (c *GetQuery) Title() string       { return "GET Method Query Support" }
func (c *GetQuery) Description() string { return "GraphQL queries accepted via GET parameters" }
func (c *GetQuery) Impact() string {
	return "CSRF vulnerability - queries triggerable from external sites"
}
func (c *GetQuery) Severity() Severity { return SeverityMedium }

func (c *GetQuery) Run(ctx context.Context, target *Target) (*Result, error) {
	result, err := target.Client.Get(ctx, "query { __typename }", c.Name())
	if err != nil {
		return nil, err
	}
	_, vulnerable := result.DataField("__typename")
	return resultFor(c, vulnerable, result.Curl), nil
}

// GetMutation reports whether mutations are processed over GET. Even a
// validation error about the mutation itself means the transport accepted
// the state-changing operation.
type GetMutation struct{}

func (c *GetMutation) Name() string        { return "get_mutation" }
func (c *GetMutation) Title() string       { return "GET Method Mutation Support" }
func (c *GetMutation) Description() string { return "GraphQL mutations accepted via GET parameters" }
func (c *GetMutation) Impact() string {
	return "CSRF vulnerability - state changes triggerable from external sites"
}
func (c *GetMutation) Severity() Severity { return SeverityMedium }

func (c *GetMutation) Run(ctx context.Context, target *Target) (*Result, error) {
	result, err := target.Client.Get(ctx, "mutation { __typename }", c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := false
	if _, ok := result.DataField("__typename"); ok {
		vulnerable = true
	} else if msgs := result.ErrorMessages(); len(msgs) > 0 {
		lower := strings.ToLower(msgs[0])
		// A method complaint means mutations over GET are refused; anything
		// else means the mutation reached the executor.
		vulnerable = !strings.Contains(lower, "get") &&
			!strings.Contains(lower, "not allowed") &&
			!strings.Contains(lower, "only")
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

// PostURLEncoded reports whether form-encoded POSTs execute, the shape a
// cross-origin HTML form submits without a CORS preflight.
type PostURLEncoded struct{}

func (c *PostURLEncoded) Name() string        { return "post_urlencoded" }
func (c *PostURLEncoded) Title() string       { return "POST URL-encoded Body Support" }
func (c *PostURLEncoded) Description() string { return "GraphQL accepts form-encoded POST requests" }
func (c *PostURLEncoded) Impact() string {
	return "CSRF vulnerability - simple form POST without CORS preflight"
}
func (c *PostURLEncoded) Severity() Severity { return SeverityMedium }

func (c *PostURLEncoded) Run(ctx context.Context, target *Target) (*Result, error) {
	result, err := target.Client.PostForm(ctx, "query { __typename }", c.Name())
	if err != nil {
		return nil, err
	}
	_, vulnerable := result.DataField("__typename")
	return resultFor(c, vulnerable, result.Curl), nil
}

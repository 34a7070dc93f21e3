package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/giuseppesec/gqlmap"
	"github.com/giuseppesec/gqlmap/schema"
)

// AliasOverloading reports whether one query may repeat a field under many
// aliases, multiplying resolver work.
type AliasOverloading struct{}

func (c *AliasOverloading) Name() string        { return "alias_overloading" }
func (c *AliasOverloading) Title() string       { return "Alias Overloading" }
func (c *AliasOverloading) Description() string { return "Multiple field aliases allowed in single query" }
func (c *AliasOverloading) Impact() string      { return "Denial of Service via resource exhaustion" }
func (c *AliasOverloading) Severity() Severity  { return SeverityHigh }

func (c *AliasOverloading) Run(ctx context.Context, target *Target) (*Result, error) {
	sb := strings.Builder{}
	sb.WriteString("query {")
	for i := 0; i <= 100; i++ {
		fmt.Fprintf(&sb, " alias%d:__typename", i)
	}
	sb.WriteString(" }")

	result, err := target.Client.Post(ctx, sb.String(), nil, c.Name())
	if err != nil {
		return nil, err
	}
	_, vulnerable := result.DataField("alias100")
	return resultFor(c, vulnerable, result.Curl), nil
}

// BatchQuery reports whether the server executes JSON array batches.
type BatchQuery struct{}

func (c *BatchQuery) Name() string        { return "batch_query" }
func (c *BatchQuery) Title() string       { return "Array-based Query Batching" }
func (c *BatchQuery) Description() string { return "Multiple queries accepted in single request" }
func (c *BatchQuery) Impact() string      { return "Denial of Service via batch resource exhaustion" }
func (c *BatchQuery) Severity() Severity  { return SeverityHigh }

func (c *BatchQuery) Run(ctx context.Context, target *Target) (*Result, error) {
	batch := make([]gqlmap.Request, 10)
	for i := range batch {
		batch[i] = gqlmap.Request{Query: "query { __typename }"}
	}
	result, err := target.Client.PostBatch(ctx, batch, c.Name())
	if err != nil {
		return nil, err
	}
	return resultFor(c, result.BatchLen() >= len(batch), result.Curl), nil
}

// DirectiveOverloading reports whether the parser tolerates a pile of
// duplicate unknown directives, answering one error per directive.
type DirectiveOverloading struct{}

func (c *DirectiveOverloading) Name() string  { return "directive_overloading" }
func (c *DirectiveOverloading) Title() string { return "Directive Overloading" }
func (c *DirectiveOverloading) Description() string {
	return "Multiple duplicate directives accepted on field"
}
func (c *DirectiveOverloading) Impact() string {
	return "Denial of Service via parser resource exhaustion"
}
func (c *DirectiveOverloading) Severity() Severity { return SeverityHigh }

func (c *DirectiveOverloading) Run(ctx context.Context, target *Target) (*Result, error) {
	query := "query { __typename " + strings.Repeat("@aa", 10) + " }"
	result, err := target.Client.Post(ctx, query, nil, c.Name())
	if err != nil {
		return nil, err
	}
	return resultFor(c, len(result.ErrorMessages()) >= 10, result.Curl), nil
}

// CircularIntrospection reports whether deeply nested introspection walks
// are allowed.
type CircularIntrospection struct{}

func (c *CircularIntrospection) Name() string        { return "circular_introspection" }
func (c *CircularIntrospection) Title() string       { return "Circular Query via Introspection" }
func (c *CircularIntrospection) Description() string { return "Deep nested introspection queries allowed" }
func (c *CircularIntrospection) Impact() string {
	return "Denial of Service via recursive resource exhaustion"
}
func (c *CircularIntrospection) Severity() Severity { return SeverityHigh }

func (c *CircularIntrospection) Run(ctx context.Context, target *Target) (*Result, error) {
	query := `query { __schema { types { fields { type { fields { type { fields { type { fields { type { name } } } } } } } } } } }`
	result, err := target.Client.Post(ctx, query, nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := false
	if raw, ok := result.DataField("__schema"); ok {
		// A real schema walk at this depth produces a large payload.
		vulnerable = strings.Count(string(raw), `"name"`) > 25
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

// FieldDuplication reports whether one field may be repeated hundreds of
// times in a selection set.
type FieldDuplication struct{}

func (c *FieldDuplication) Name() string        { return "field_duplication" }
func (c *FieldDuplication) Title() string       { return "Field Duplication" }
func (c *FieldDuplication) Description() string { return "Repeated fields accepted in query" }
func (c *FieldDuplication) Impact() string      { return "Denial of Service via memory exhaustion" }
func (c *FieldDuplication) Severity() Severity  { return SeverityHigh }

func (c *FieldDuplication) Run(ctx context.Context, target *Target) (*Result, error) {
	query := "query { " + strings.TrimSpace(strings.Repeat("__typename ", 500)) + " }"
	result, err := target.Client.Post(ctx, query, nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := result.HasData() && len(result.ErrorMessages()) == 0
	return resultFor(c, vulnerable, result.Curl), nil
}

// DepthLimit builds a deep query along a recursive path found in the schema
// and reports whether the server executes it. Without a schema the check is
// inconclusive.
type DepthLimit struct{}

func (c *DepthLimit) Name() string        { return "depth_limit" }
func (c *DepthLimit) Title() string       { return "Depth Limit Detection" }
func (c *DepthLimit) Description() string { return "Server accepts deeply nested queries" }
func (c *DepthLimit) Impact() string {
	return "Denial of Service via stack overflow or resource exhaustion"
}
func (c *DepthLimit) Severity() Severity { return SeverityHigh }

func (c *DepthLimit) Run(ctx context.Context, target *Target) (*Result, error) {
	if target.Schema == nil {
		return resultFor(c, false, "introspection unavailable, cannot build deep query"), nil
	}
	rootField, recursiveField, ok := findRecursivePath(target.Schema)
	if !ok {
		return resultFor(c, false, "no recursive path found in schema"), nil
	}

	selection := "__typename"
	for i := 0; i < 64; i++ {
		selection = recursiveField + " { " + selection + " }"
	}
	query := "query { " + rootField + " { " + selection + " } }"

	result, err := target.Client.Post(ctx, query, nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := result.HasData()
	for _, msg := range result.ErrorMessages() {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "depth") || strings.Contains(lower, "complexity") {
			return resultFor(c, false, result.Curl), nil
		}
		vulnerable = true
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

// findRecursivePath looks for a root field returning a type that has a field
// returning itself, e.g. Query.me -> User, User.manager -> User.
func findRecursivePath(model *schema.Model) (rootField, recursiveField string, ok bool) {
	rootName, ok := model.Root(schema.Query)
	if !ok {
		return "", "", false
	}
	root := model.Get(rootName)
	if root == nil {
		return "", "", false
	}
	for _, fieldName := range root.FieldNames() {
		field := root.Fields[fieldName]
		td := model.Get(field.Type.Name)
		if td == nil {
			continue
		}
		for _, innerName := range td.FieldNames() {
			if td.Fields[innerName].Type.Name == td.Name {
				return fieldName, innerName, true
			}
		}
	}
	return "", "", false
}

// QueryComplexity builds a query over nested list fields found in the schema
// and reports whether the server executes it without a cost complaint.
// Without a schema the check is inconclusive.
type QueryComplexity struct{}

func (c *QueryComplexity) Name() string        { return "query_complexity" }
func (c *QueryComplexity) Title() string       { return "Query Complexity Analysis" }
func (c *QueryComplexity) Description() string { return "Server accepts complex queries (nested lists)" }
func (c *QueryComplexity) Impact() string      { return "Denial of Service via CPU/Memory exhaustion" }
func (c *QueryComplexity) Severity() Severity  { return SeverityHigh }

func (c *QueryComplexity) Run(ctx context.Context, target *Target) (*Result, error) {
	if target.Schema == nil {
		return resultFor(c, false, "introspection unavailable, cannot build complex query"), nil
	}
	f1, f2, f3, ok := findNestedLists(target.Schema)
	if !ok {
		return resultFor(c, false, "no nested lists found in schema"), nil
	}
	query := fmt.Sprintf("query { %s { %s { %s } } }", f1, f2, f3)
	result, err := target.Client.Post(ctx, query, nil, c.Name())
	if err != nil {
		return nil, err
	}
	vulnerable := result.HasData()
	for _, msg := range result.ErrorMessages() {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "complexity") || strings.Contains(lower, "cost") || strings.Contains(lower, "score") {
			return resultFor(c, false, result.Curl), nil
		}
		vulnerable = true
	}
	return resultFor(c, vulnerable, result.Curl), nil
}

// findNestedLists looks for Query -> [A] -> [B] -> leaf, a shape whose
// result size multiplies per level.
func findNestedLists(model *schema.Model) (rootField, listField, leafField string, ok bool) {
	rootName, ok := model.Root(schema.Query)
	if !ok {
		return "", "", "", false
	}
	root := model.Get(rootName)
	if root == nil {
		return "", "", "", false
	}
	for _, fieldName := range root.FieldNames() {
		field := root.Fields[fieldName]
		if field.Type.ListDepth == 0 {
			continue
		}
		td := model.Get(field.Type.Name)
		if td == nil {
			continue
		}
		for _, innerName := range td.FieldNames() {
			inner := td.Fields[innerName]
			if inner.Type.ListDepth == 0 {
				continue
			}
			innerType := model.Get(inner.Type.Name)
			if innerType == nil {
				continue
			}
			for _, leafName := range innerType.FieldNames() {
				return fieldName, innerName, leafName, true
			}
		}
	}
	return "", "", "", false
}

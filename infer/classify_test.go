package infer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/schema"
)

func probeResult(t *testing.T, body string) *httpgql.ProbeResult {
	t.Helper()
	result := &httpgql.ProbeResult{Status: 200, Raw: []byte(body)}
	result.Decode()
	return result
}

func TestClassifyFieldDataConfirms(t *testing.T) {
	c := DefaultClassifier()

	result := probeResult(t, `{"data":{"health":"ok"}}`)
	verdict := c.ClassifyField(result, "health")
	assert.Equal(t, Confirmed, verdict.Outcome)
	require.True(t, verdict.HasRef)
	assert.Equal(t, "String", verdict.Ref.Name)

	result = probeResult(t, `{"data":{"count":42}}`)
	verdict = c.ClassifyField(result, "count")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.Equal(t, "Int", verdict.Ref.Name)

	result = probeResult(t, `{"data":{"ratio":0.5}}`)
	verdict = c.ClassifyField(result, "ratio")
	assert.Equal(t, "Float", verdict.Ref.Name)

	result = probeResult(t, `{"data":{"tags":["a","b"]}}`)
	verdict = c.ClassifyField(result, "tags")
	assert.Equal(t, "String", verdict.Ref.Name)
	assert.Equal(t, 1, verdict.Ref.ListDepth)

	// Null proves existence but not the type.
	result = probeResult(t, `{"data":{"owner":null}}`)
	verdict = c.ClassifyField(result, "owner")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.True(t, verdict.Ref.Unresolved)
}

func TestClassifyFieldNestedPath(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"data":{"user":{"email":"a@b.c"}}}`)

	verdict := c.ClassifyField(result, "email", "user")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.Equal(t, "String", verdict.Ref.Name)

	// The same response proves nothing about a top-level email field.
	verdict = c.ClassifyField(result, "email")
	assert.Equal(t, Ambiguous, verdict.Outcome)
}

func TestClassifyFieldSelectionRequired(t *testing.T) {
	c := DefaultClassifier()

	result := probeResult(t, `{"errors":[{"message":"Field \"user\" of type \"User\" must have a selection of subfields. Did you mean \"user { ... }\"?"}]}`)
	verdict := c.ClassifyField(result, "user")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.True(t, verdict.RequiresSelection)
	assert.Equal(t, "User", verdict.TypeName)

	// juniper/async-graphql wording, type and field swapped.
	result = probeResult(t, `{"errors":[{"message":"Subselection required for type \"Account\" of field \"account\""}]}`)
	verdict = c.ClassifyField(result, "account")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.True(t, verdict.RequiresSelection)
	assert.Equal(t, "Account", verdict.TypeName)
}

func TestClassifyFieldSelectionForbidden(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Field \"name\" must not have a selection since type \"String!\" has no subfields."}]}`)
	verdict := c.ClassifyField(result, "name")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.False(t, verdict.RequiresSelection)
	assert.Equal(t, "String", verdict.TypeName)
}

func TestClassifyFieldUnknownRejects(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Cannot query field \"flimflam\" on type \"Query\"."}]}`)
	verdict := c.ClassifyField(result, "flimflam")
	assert.Equal(t, Rejected, verdict.Outcome)
	assert.Equal(t, "Query", verdict.OnType)
}

func TestClassifyFieldSuggestions(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Cannot query field \"usr\" on type \"Query\". Did you mean \"user\" or \"users\"?"}]}`)
	verdict := c.ClassifyField(result, "usr")
	assert.Equal(t, Suggested, verdict.Outcome)
	// Nearest first.
	assert.Equal(t, []string{"user", "users"}, verdict.Suggestions)
}

func TestClassifyFieldErrorAboutOtherFieldIsAmbiguous(t *testing.T) {
	c := DefaultClassifier()
	// The complaint is about the path, not the candidate.
	result := probeResult(t, `{"errors":[{"message":"Cannot query field \"user\" on type \"Query\"."}]}`)
	verdict := c.ClassifyField(result, "email")
	assert.Equal(t, Ambiguous, verdict.Outcome)
}

func TestClassifyFieldRecognizedErrorConfirms(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Not authorized to access secrets"}]}`)
	verdict := c.ClassifyField(result, "secrets")
	assert.Equal(t, Confirmed, verdict.Outcome)
	assert.False(t, verdict.HasRef)
}

func TestClassifyFieldUnmatchedStaysAmbiguous(t *testing.T) {
	c := DefaultClassifier()

	for _, body := range []string{
		`{"errors":[{"message":"Something went terribly wrong"}]}`,
		`{"errors":[{"message":"rate limit exceeded"}]}`,
		`<html>502 Bad Gateway</html>`,
		`{"data":null}`,
	} {
		result := probeResult(t, body)
		verdict := c.ClassifyField(result, "user")
		assert.Equal(t, Ambiguous, verdict.Outcome, "body %s", body)
	}
}

func TestClassifyFieldRequiredArgumentLeak(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Field \"user\" argument \"id\" of type \"ID!\" is required, but it was not provided."}]}`)
	verdict := c.ClassifyField(result, "user")
	// The validator resolved the field to complain about its argument.
	assert.Equal(t, Confirmed, verdict.Outcome)
	require.Len(t, verdict.RequiredArgs, 1)
	assert.Equal(t, "id", verdict.RequiredArgs[0].Name)
	assert.Equal(t, "ID", verdict.RequiredArgs[0].Type)
}

func TestClassifyArgument(t *testing.T) {
	c := DefaultClassifier()

	result := probeResult(t, `{"errors":[{"message":"Unknown argument \"filterz\" on field \"Query.users\". Did you mean \"filter\"?"}]}`)
	verdict := c.ClassifyArgument(result, "users", "filterz")
	assert.Equal(t, Suggested, verdict.Outcome)
	assert.Equal(t, []string{"filter"}, verdict.Suggestions)

	result = probeResult(t, `{"errors":[{"message":"Unknown argument \"bogus\" on field \"Query.users\"."}]}`)
	verdict = c.ClassifyArgument(result, "users", "bogus")
	assert.Equal(t, Rejected, verdict.Outcome)

	result = probeResult(t, `{"data":{"users":[]}}`)
	verdict = c.ClassifyArgument(result, "users", "limit")
	assert.Equal(t, Confirmed, verdict.Outcome)

	// Null in a non-nullable position names the argument.
	result = probeResult(t, `{"errors":[{"message":"Expected value of type \"ID!\", found null for argument \"id\""}]}`)
	verdict = c.ClassifyArgument(result, "user", "id")
	assert.Equal(t, Confirmed, verdict.Outcome)
}

func TestLeakedTypes(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Cannot query field \"x\" on type \"Widget\"."},{"message":"Subselection required for type \"Gadget\" of field \"g\""}]}`)
	assert.ElementsMatch(t, []string{"Widget", "Gadget"}, c.LeakedTypes(result))
}

func TestOperationUnsupported(t *testing.T) {
	c := DefaultClassifier()
	result := probeResult(t, `{"errors":[{"message":"Schema is not configured for mutations."}]}`)
	assert.True(t, c.OperationUnsupported(result))

	result = probeResult(t, `{"errors":[{"message":"Subscriptions are not supported."}]}`)
	assert.True(t, c.OperationUnsupported(result))
}

func TestRankSuggestions(t *testing.T) {
	ranked := RankSuggestions("user", []string{"customer", "users", "user", "users", "not a name!"})
	assert.Equal(t, []string{"user", "users", "customer"}, ranked)
}

func TestLoadPatternsMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	content := "fieldUnknown:\n  - 'le champ \"(?P<field>\\w+)\" est inconnu sur le type \"(?P<type>\\w+)\"'\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadPatterns(path)
	require.NoError(t, err)
	c, err := NewClassifier(cfg)
	require.NoError(t, err)

	// Custom pattern matches.
	result := probeResult(t, `{"errors":[{"message":"le champ \"abc\" est inconnu sur le type \"Query\""}]}`)
	verdict := c.ClassifyField(result, "abc")
	assert.Equal(t, Rejected, verdict.Outcome)

	// Defaults still match.
	result = probeResult(t, `{"errors":[{"message":"Cannot query field \"abc\" on type \"Query\"."}]}`)
	verdict = c.ClassifyField(result, "abc")
	assert.Equal(t, Rejected, verdict.Outcome)
}

func TestRefFromValueObject(t *testing.T) {
	ref, ok := refFromValue([]byte(`{"nested":true}`))
	assert.True(t, ok)
	assert.True(t, ref.Unresolved)
	assert.Equal(t, schema.TypeRef{Unresolved: true}, ref)
}

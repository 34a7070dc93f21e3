package scan

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giuseppesec/gqlmap"
	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/schema"
)

func testClient(t *testing.T, handler http.HandlerFunc) *httpgql.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := httpgql.NewClient(server.URL, httpgql.Options{})
	require.NoError(t, err)
	return client
}

func testTarget(t *testing.T, handler http.HandlerFunc) *Target {
	return &Target{Client: testClient(t, handler)}
}

func respond(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func TestIntrospectionCheck(t *testing.T) {
	check := &Introspection{}

	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"__schema":{"types":[{"name":"Query","fields":[{"name":"user"}]}]}}}`)
	})
	result, err := check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)
	assert.Equal(t, SeverityHigh, result.Severity)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"introspection is disabled"}]}`)
	})
	result, err = check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestAliasOverloadingCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{}
		for i := 0; i <= 100; i++ {
			data["alias"+strconv.Itoa(i)] = "Query"
		}
		out, _ := json.Marshal(map[string]interface{}{"data": data})
		respond(w, string(out))
	})
	result, err := (&AliasOverloading{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Aliases limit exceeded"}]}`)
	})
	result, err = (&AliasOverloading{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestBatchQueryCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		var batch []gqlmap.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		out := make([]interface{}, len(batch))
		for i := range batch {
			out[i] = map[string]interface{}{"data": map[string]string{"__typename": "Query"}}
		}
		json.NewEncoder(w).Encode(out)
	})
	result, err := (&BatchQuery{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Batching is not supported"}]}`)
	})
	result, err = (&BatchQuery{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestDirectiveOverloadingCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		errs := make([]map[string]string, 10)
		for i := range errs {
			errs[i] = map[string]string{"message": `Unknown directive "aa".`}
		}
		out, _ := json.Marshal(map[string]interface{}{"errors": errs})
		respond(w, string(out))
	})
	result, err := (&DirectiveOverloading{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Syntax error"}]}`)
	})
	result, err = (&DirectiveOverloading{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestFieldDuplicationCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"__typename":"Query"}}`)
	})
	result, err := (&FieldDuplication{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Query is too large"}]}`)
	})
	result, err = (&FieldDuplication{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestCircularIntrospectionCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		names := strings.Repeat(`{"name":"T"},`, 30)
		respond(w, `{"data":{"__schema":{"types":[`+strings.TrimSuffix(names, ",")+`]}}}`)
	})
	result, err := (&CircularIntrospection{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"introspection is disabled"}]}`)
	})
	result, err = (&CircularIntrospection{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func recursiveModel() *schema.Model {
	m := schema.NewModel()
	m.SetRoot(schema.Query, "Query")
	m.UpsertType("Query", schema.Object)
	m.UpsertType("User", schema.Object)
	m.UpsertField("Query", "me", schema.TypeRef{Name: "User"}, schema.Inferred, schema.ConfidenceDirect)
	m.UpsertField("User", "manager", schema.TypeRef{Name: "User"}, schema.Inferred, schema.ConfidenceDirect)
	return m
}

func TestDepthLimitCheck(t *testing.T) {
	check := &DepthLimit{}

	// Without a schema the check is inconclusive, not vulnerable.
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"me":{}}}`)
	})
	result, err := check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
	assert.Contains(t, result.Curl, "introspection unavailable")

	// Deep query executed without complaint.
	var gotQuery string
	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		req := gqlmap.Request{}
		json.NewDecoder(r.Body).Decode(&req)
		gotQuery = req.Query
		respond(w, `{"data":{"me":{}}}`)
	})
	target.Schema = recursiveModel()
	result, err = check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)
	assert.Equal(t, 64, strings.Count(gotQuery, "manager"))

	// Depth limiter in place.
	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Query exceeds maximum depth of 10"}]}`)
	})
	target.Schema = recursiveModel()
	result, err = check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func nestedListModel() *schema.Model {
	m := schema.NewModel()
	m.SetRoot(schema.Query, "Query")
	m.UpsertType("Query", schema.Object)
	m.UpsertType("Org", schema.Object)
	m.UpsertType("Team", schema.Object)
	m.UpsertField("Query", "orgs", schema.TypeRef{Name: "Org", ListDepth: 1}, schema.Inferred, schema.ConfidenceDirect)
	m.UpsertField("Org", "teams", schema.TypeRef{Name: "Team", ListDepth: 1}, schema.Inferred, schema.ConfidenceDirect)
	m.UpsertField("Team", "name", schema.TypeRef{Name: "String"}, schema.Inferred, schema.ConfidenceDirect)
	return m
}

func TestQueryComplexityCheck(t *testing.T) {
	check := &QueryComplexity{}

	var gotQuery string
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		req := gqlmap.Request{}
		json.NewDecoder(r.Body).Decode(&req)
		gotQuery = req.Query
		respond(w, `{"data":{"orgs":[]}}`)
	})
	target.Schema = nestedListModel()
	result, err := check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)
	assert.Equal(t, "query { orgs { teams { name } } }", gotQuery)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Query cost 5000 exceeds maximum cost of 1000"}]}`)
	})
	target.Schema = nestedListModel()
	result, err = check.Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestIDEExposedCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>GraphiQL</title></head></html>`))
	})
	result, err := (&IDEExposed{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"must provide query"}]}`))
	})
	result, err = (&IDEExposed{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestFieldSuggestionsCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Cannot query field \"directive\" on type \"__Schema\". Did you mean \"directives\"?"}]}`)
	})
	result, err := (&FieldSuggestions{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Cannot query field \"directive\" on type \"__Schema\"."}]}`)
	})
	result, err = (&FieldSuggestions{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestTraceModeCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"__typename":"Query"},"extensions":{"tracing":{"version":1}}}`)
	})
	result, err := (&TraceMode{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"__typename":"Query"}}`)
	})
	result, err = (&TraceMode{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestUnhandledErrorsCheck(t *testing.T) {
	target := testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"boom","extensions":{"exception":{"stacktrace":["Error: boom"]}}}]}`)
	})
	result, err := (&UnhandledErrors{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, result.Vulnerable)

	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"Syntax Error"}]}`)
	})
	result, err = (&UnhandledErrors{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestCSRFChecks(t *testing.T) {
	// Executes everything over every transport.
	permissive := func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"__typename":"Query"}}`)
	}

	target := testTarget(t, permissive)
	for _, check := range []Check{&GetQuery{}, &GetMutation{}, &PostURLEncoded{}} {
		result, err := check.Run(context.Background(), target)
		require.NoError(t, err)
		assert.True(t, result.Vulnerable, check.Name())
		assert.Equal(t, SeverityMedium, result.Severity)
	}

	// Refuses GET mutations with a method complaint.
	target = testTarget(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"GET requests only support query operations"}]}`)
	})
	result, err := (&GetMutation{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, result.Vulnerable)
}

func TestIsGraphQL(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"data":{"__typename":"query_root"}}`)
	})
	ok, err := IsGraphQL(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, ok)

	// GraphQL-shaped errors count even without data.
	client = testClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{"errors":[{"message":"introspection disabled","locations":[{"line":1,"column":9}]}]}`)
	})
	ok, err = IsGraphQL(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, ok)

	client = testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>welcome</html>`))
	})
	ok, err = IsGraphQL(context.Background(), client)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunnerExcludesChecks(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw := []byte(`{"data":{"__typename":"Query"}}`)
		body, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
			w.Write([]byte("[" + string(raw) + "]"))
			return
		}
		w.Write(raw)
	})

	runner := &Runner{Exclude: []string{"get_*", "post_urlencoded"}}
	results, err := runner.Run(context.Background(), client)
	require.NoError(t, err)

	assert.Len(t, results, len(AllChecks())-3)
	for _, result := range results {
		assert.NotContains(t, []string{"get_query_support", "get_mutation", "post_urlencoded"}, result.Name)
	}
}

func TestRunnerRejectsBadExcludePattern(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {})
	runner := &Runner{Exclude: []string{"[bad"}}
	_, err := runner.Run(context.Background(), client)
	require.Error(t, err)
}

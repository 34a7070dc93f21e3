package httpgql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giuseppesec/gqlmap"
	"github.com/giuseppesec/gqlmap/qerrors"
)

func TestNewClientRejectsBadURLs(t *testing.T) {
	_, err := NewClient("ftp://example.com/graphql", Options{})
	require.Error(t, err)
	assert.True(t, qerrors.IsFatalConfig(err))

	_, err = NewClient("http://example.com/graphql", Options{Proxy: "://bad"})
	require.Error(t, err)
	assert.True(t, qerrors.IsFatalConfig(err))
}

func TestPostSendsJSONAndHeaders(t *testing.T) {
	var got *http.Request
	var body gqlmap.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"health":"ok"}}`))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer sekret")
	client, err := NewClient(server.URL, Options{Headers: headers, Debug: true})
	require.NoError(t, err)

	result, err := client.Post(context.Background(), "query { health }", nil, "field:Query.health")
	require.NoError(t, err)

	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer sekret", got.Header.Get("Authorization"))
	assert.NotEmpty(t, got.Header.Get("User-Agent"))
	assert.Equal(t, "field:Query.health", got.Header.Get("X-GQLMap-Probe"))
	assert.Equal(t, client.RunID(), got.Header.Get("X-GQLMap-Run"))
	assert.Equal(t, "query { health }", body.Query)

	assert.Equal(t, 200, result.Status)
	raw, ok := result.DataField("health")
	require.True(t, ok)
	assert.Equal(t, `"ok"`, string(raw))
	assert.Contains(t, result.Curl, "curl -X POST")
	assert.Contains(t, result.Curl, "query { health }")
}

func TestDebugHeadersOffByDefault(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)
	_, err = client.Post(context.Background(), "query { x }", nil, "field:Query.x")
	require.NoError(t, err)

	assert.Empty(t, got.Get("X-GQLMap-Probe"))
	assert.Empty(t, got.Get("X-GQLMap-Run"))
}

func TestPostDecodesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"Cannot query field \"x\" on type \"Query\"."}]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)
	result, err := client.Post(context.Background(), "query { x }", nil, "")
	require.NoError(t, err)

	// HTTP 400 is a result, not a transport fault.
	assert.Equal(t, 400, result.Status)
	assert.False(t, result.HasData())
	assert.Equal(t, []string{`Cannot query field "x" on type "Query".`}, result.ErrorMessages())
}

func TestPostMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)
	result, err := client.Post(context.Background(), "query { x }", nil, "")
	require.NoError(t, err)

	assert.True(t, result.Malformed())
	assert.False(t, result.HasData())
	assert.Nil(t, result.ErrorMessages())
}

func TestPostTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)
	_, err = client.Post(context.Background(), "query { x }", nil, "")
	require.Error(t, err)
	assert.True(t, qerrors.IsTransport(err))
}

func TestPostBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []gqlmap.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		out := make([]interface{}, len(batch))
		for i := range batch {
			out[i] = map[string]interface{}{"data": map[string]string{"__typename": "Query"}}
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)

	requests := make([]gqlmap.Request, 10)
	for i := range requests {
		requests[i] = gqlmap.Request{Query: "query { __typename }"}
	}
	result, err := client.PostBatch(context.Background(), requests, "batch")
	require.NoError(t, err)
	assert.Equal(t, 10, result.BatchLen())
	assert.False(t, result.Malformed())
}

func TestGetAndPostForm(t *testing.T) {
	var method, query, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		if r.Method == http.MethodGet {
			query = r.URL.Query().Get("query")
		} else {
			require.NoError(t, r.ParseForm())
			query = r.PostForm.Get("query")
		}
		w.Write([]byte(`{"data":{"__typename":"Query"}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)

	result, err := client.Get(context.Background(), "query { __typename }", "")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "query { __typename }", query)
	assert.True(t, result.HasData())

	_, err = client.PostForm(context.Background(), "query { __typename }", "")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "query { __typename }", query)
}

func TestGetHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		w.Write([]byte("<html><title>GraphiQL</title></html>"))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)
	status, body, err := client.GetHTML(context.Background(), "ide")
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "GraphiQL")
}

func TestWithURL(t *testing.T) {
	client, err := NewClient("http://example.com/graphql", Options{})
	require.NoError(t, err)

	clone := client.WithURL("http://example.com/api")
	assert.Equal(t, "http://example.com/api", clone.URL)
	assert.Equal(t, "http://example.com/graphql", client.URL)
	assert.Equal(t, client.RunID(), clone.RunID())
}

func TestCurlCommandEscapesQuotes(t *testing.T) {
	cmd := curlCommand(http.MethodPost, "http://x/graphql", "application/json", `{"query":"{ a(s: \"it's\") }"}`)
	assert.Contains(t, cmd, `'\''`)
	assert.Contains(t, cmd, "-H 'Content-Type: application/json'")
}

package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/qerrors"
)

func TestDiscoveryFindsEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/graphql", "/api/graphql":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"__typename":"Query"}}`))
		case "/api":
			// JSON but not GraphQL-shaped.
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := httpgql.NewClient(server.URL, httpgql.Options{})
	require.NoError(t, err)

	d := &Discovery{}
	found, err := d.Run(context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/graphql", server.URL + "/api/graphql"}, found)
}

func TestDiscoveryCustomPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/internal/gql" {
			w.Write([]byte(`{"data":{"__typename":"QueryRoot"}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := httpgql.NewClient(server.URL, httpgql.Options{})
	require.NoError(t, err)

	d := &Discovery{Paths: []string{"/internal/gql", "/nope"}}
	found, err := d.Run(context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/internal/gql"}, found)
}

func TestDiscoveryRejectsBadBaseURL(t *testing.T) {
	client, err := httpgql.NewClient("http://example.com", httpgql.Options{})
	require.NoError(t, err)

	d := &Discovery{}
	_, err = d.Run(context.Background(), client, "http://bad url with spaces\x7f")
	require.Error(t, err)
	assert.True(t, qerrors.IsFatalConfig(err))
}

func TestDiscoveryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := httpgql.NewClient("http://example.com", httpgql.Options{})
	require.NoError(t, err)

	d := &Discovery{}
	found, err := d.Run(ctx, client, "http://example.com")
	require.Error(t, err)
	assert.Empty(t, found)
}

func TestLoadWordlistNormalizesPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paths.txt")
	content := "# candidates\n/graphql\napi/gql\n\n/console\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	paths, err := LoadWordlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/graphql", "/api/gql", "/console"}, paths)
}

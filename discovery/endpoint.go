// Package discovery locates GraphQL endpoints under a base URL by probing
// the paths servers customarily mount them on.
package discovery

import (
	"bufio"
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/qerrors"
	"github.com/giuseppesec/gqlmap/scan"
)

// DefaultPaths returns the built-in endpoint path candidates.
func DefaultPaths() []string {
	return []string{
		"/graphql",
		"/graphiql",
		"/playground",
		"/console",
		"/query",
		"/api/graphql",
		"/api/v1/graphql",
		"/api/v2/graphql",
		"/v1/graphql",
		"/v2/graphql",
		"/gql",
		"/api/gql",
		"/graph",
		"/api",
	}
}

type Discovery struct {
	// Paths overrides DefaultPaths when non-empty.
	Paths  []string
	Logger log.Logger
}

// Run probes every candidate path under the base URL and returns the ones
// that answer like GraphQL endpoints. Transport faults on individual paths
// are expected, most candidates do not exist, so they only end the walk when
// the context dies.
func (d *Discovery) Run(ctx context.Context, client *httpgql.Client, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, qerrors.FatalConfig(err, "invalid base URL")
	}
	logger := d.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	paths := d.Paths
	if len(paths) == 0 {
		paths = DefaultPaths()
	}

	var found []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		candidate := *base
		candidate.Path = path
		target := candidate.String()

		ok, err := scan.IsGraphQL(ctx, client.WithURL(target))
		if err != nil {
			level.Debug(logger).Log("msg", "path unreachable", "url", target, "err", err)
			continue
		}
		if ok {
			level.Info(logger).Log("msg", "endpoint found", "url", target)
			found = append(found, target)
		}
	}
	return found, nil
}

// LoadWordlist reads one path per line, normalizing entries to a leading
// slash. Blank lines and #-comments are skipped.
func LoadWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening path wordlist")
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			line = "/" + line
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading path wordlist")
	}
	return paths, nil
}

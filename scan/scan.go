// Package scan runs security checks against a GraphQL endpoint: information
// disclosure, denial-of-service surface, and CSRF-friendly transports. Checks
// observe, they do not exploit: each sends at most a handful of requests and
// reports whether the weakness is present.
package scan

import (
	"context"
	"encoding/json"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/schema"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
	SeverityInfo   Severity = "INFO"
)

// Target is what a check probes: the endpoint client plus the introspected
// schema when the runner could fetch one. Schema-guided checks skip
// themselves when Schema is nil.
type Target struct {
	Client *httpgql.Client
	Schema *schema.Model
}

// Result is one check's finding.
type Result struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Severity    Severity `json:"severity"`
	Vulnerable  bool     `json:"vulnerable"`
	// Curl reproduces the probe, or explains why the check was inconclusive.
	Curl string `json:"curl_command,omitempty"`
}

type Check interface {
	Name() string
	Title() string
	Description() string
	Impact() string
	Severity() Severity
	Run(ctx context.Context, target *Target) (*Result, error)
}

// AllChecks returns every registered check in report order.
func AllChecks() []Check {
	return []Check{
		// DoS surface
		&AliasOverloading{},
		&BatchQuery{},
		&DirectiveOverloading{},
		&CircularIntrospection{},
		&FieldDuplication{},
		&DepthLimit{},
		&QueryComplexity{},
		// Information disclosure
		&Introspection{},
		&IDEExposed{},
		&FieldSuggestions{},
		&TraceMode{},
		&UnhandledErrors{},
		// CSRF transports
		&GetQuery{},
		&GetMutation{},
		&PostURLEncoded{},
	}
}

type Runner struct {
	// Exclude holds glob patterns matched against check names.
	Exclude []string
	Logger  log.Logger
}

// Run executes all non-excluded checks. A failing check does not stop the
// others; their errors are aggregated and returned alongside the results
// that did land.
func (r *Runner) Run(ctx context.Context, client *httpgql.Client) ([]*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	excludes, err := compileExcludes(r.Exclude)
	if err != nil {
		return nil, err
	}

	target := &Target{Client: client}
	// Schema-guided checks want an introspected model; its absence is normal.
	if model, err := fetchIntrospection(ctx, client); err == nil {
		target.Schema = model
	}

	var results []*Result
	var errs *multierror.Error
	for _, check := range AllChecks() {
		if excluded(excludes, check.Name()) {
			level.Debug(logger).Log("msg", "check excluded", "check", check.Name())
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		result, err := check.Run(ctx, target)
		if err != nil {
			level.Warn(logger).Log("msg", "check failed", "check", check.Name(), "err", err)
			errs = multierror.Append(errs, errors.Wrapf(err, "check %s", check.Name()))
			continue
		}
		level.Debug(logger).Log("msg", "check done", "check", check.Name(), "vulnerable", result.Vulnerable)
		results = append(results, result)
	}
	return results, errs.ErrorOrNil()
}

// IsGraphQL probes whether the URL behaves like a GraphQL endpoint: either
// `{ __typename }` answers with a customary root name, or the errors carry
// GraphQL-shaped structure (locations, extensions).
func IsGraphQL(ctx context.Context, client *httpgql.Client) (bool, error) {
	result, err := client.Post(ctx, "query { __typename }", nil, "detection")
	if err != nil {
		return false, err
	}
	if raw, ok := result.DataField("__typename"); ok {
		var name string
		if json.Unmarshal(raw, &name) == nil {
			switch name {
			case "Query", "QueryRoot", "query_root", "Root":
				return true, nil
			}
		}
	}
	if result.Response != nil {
		for _, e := range result.Response.Errors {
			if len(e.Locations) > 0 || len(e.Extensions) > 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

func fetchIntrospection(ctx context.Context, client *httpgql.Client) (*schema.Model, error) {
	result, err := client.Post(ctx, schema.IntrospectionQuery, nil, "introspection")
	if err != nil {
		return nil, err
	}
	if !result.HasData() {
		return nil, errors.New("introspection refused")
	}
	return schema.ImportIntrospection(result.Raw)
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "bad exclude pattern %q", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func excluded(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// resultFor fills the static fields of a check's result.
func resultFor(c Check, vulnerable bool, curl string) *Result {
	return &Result{
		Name:        c.Name(),
		Title:       c.Title(),
		Description: c.Description(),
		Impact:      c.Impact(),
		Severity:    c.Severity(),
		Vulnerable:  vulnerable,
		Curl:        curl,
	}
}

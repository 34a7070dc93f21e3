package infer

import (
	"os"
	"regexp"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Error wording differs per server implementation, so the classifier is
// driven by a pattern table rather than hard-coded grammar. The table is
// data: operators can merge extra patterns from a YAML file when they meet a
// server the defaults do not cover.
//
// Regexp classes use named captures (field, type, arg, names); match classes
// are case-insensitive globs over the whole message.
type PatternConfig struct {
	// FieldUnknown states the probed field does not exist on the type.
	FieldUnknown []string `json:"fieldUnknown,omitempty"`
	// Suggestion carries a "did you mean" list of close alternatives.
	Suggestion []string `json:"suggestion,omitempty"`
	// SelectionRequired proves the field exists and returns a composite type.
	SelectionRequired []string `json:"selectionRequired,omitempty"`
	// SelectionForbidden proves the field exists and returns a leaf type.
	SelectionForbidden []string `json:"selectionForbidden,omitempty"`
	// ArgumentUnknown states the probed argument does not exist.
	ArgumentUnknown []string `json:"argumentUnknown,omitempty"`
	// ArgumentRequired names an argument the server insists on.
	ArgumentRequired []string `json:"argumentRequired,omitempty"`
	// UnknownType leaks a type name the server does not know.
	UnknownType []string `json:"unknownType,omitempty"`
	// OperationUnsupported states the whole operation kind is absent.
	OperationUnsupported []string `json:"operationUnsupported,omitempty"`
	// Recognized are errors unrelated to existence (auth, permissions) that
	// still prove the server resolved the probed member.
	Recognized []string `json:"recognized,omitempty"`
	// Ignore are messages that carry no schema signal at all.
	Ignore []string `json:"ignore,omitempty"`
}

// DefaultPatterns covers the wordings of graphql-js, graphql-go, juniper /
// async-graphql and Hasura. New servers get pattern additions, not code.
func DefaultPatterns() PatternConfig {
	return PatternConfig{
		FieldUnknown: []string{
			`Cannot query field ["']?(?P<field>\w+)["']? on type ["']?(?P<type>\w+)["']?`,
			`Unknown field ["']?(?P<field>\w+)["']? on type ["']?(?P<type>\w+)["']?`,
			`[Ff]ield ["']?(?P<field>\w+)["']? not found in type:? ["']?(?P<type>[\w\[\]!]+)["']?`,
		},
		Suggestion: []string{
			`[Dd]id you mean (?P<names>[^?]+)\??`,
		},
		SelectionRequired: []string{
			`Subselection required for type ["']?(?P<type>\w+)["']? of field ["']?(?P<field>\w+)["']?`,
			`Field ["']?(?P<field>\w+)["']? of type ["']?(?P<type>[\w\[\]!]+)["']? must have a selection of subfields`,
			`Field ["']?(?P<field>\w+)["']? of type ["']?(?P<type>[\w\[\]!]+)["']? must have a sub selection`,
		},
		SelectionForbidden: []string{
			`Field ["']?(?P<field>\w+)["']? must not have a selection since type ["']?(?P<type>[\w\[\]!]+)["']? has no subfields`,
			`Field ["']?(?P<field>\w+)["']? of type ["']?(?P<type>[\w\[\]!]+)["']? has no subfields`,
		},
		ArgumentUnknown: []string{
			`Unknown argument ["']?(?P<arg>\w+)["']? on field ["']?(?P<field>[\w.]+)["']?`,
			`Unknown argument ["']?(?P<arg>\w+)["']?`,
			`[Nn]o argument ["']?(?P<arg>\w+)["']?`,
		},
		ArgumentRequired: []string{
			`argument ["']?(?P<arg>\w+)["']? of type ["']?(?P<type>[\w\[\]!]+)["']? is required`,
			`[Mm]issing required argument ["']?(?P<arg>\w+)["']?`,
			`[Aa]rgument ["']?(?P<arg>\w+)["']? is required`,
		},
		UnknownType: []string{
			`Unknown type ["']?(?P<type>\w+)["']?`,
		},
		OperationUnsupported: []string{
			`[Ss]chema is not configured for (?P<op>\w+)`,
			`(?P<op>[Mm]utation|[Ss]ubscription)s? (?:are|is) not supported`,
		},
		Recognized: []string{
			`*not authorized*`,
			`*unauthorized*`,
			`*unauthenticated*`,
			`*permission denied*`,
			`*access denied*`,
			`*forbidden*`,
			`*must be logged in*`,
			`*authentication required*`,
		},
		Ignore: []string{
			`*persisted quer*`,
			`*rate limit*`,
			`*too many requests*`,
		},
	}
}

// Merge appends the other table's entries onto this one.
func (c PatternConfig) Merge(other PatternConfig) PatternConfig {
	c.FieldUnknown = append(c.FieldUnknown, other.FieldUnknown...)
	c.Suggestion = append(c.Suggestion, other.Suggestion...)
	c.SelectionRequired = append(c.SelectionRequired, other.SelectionRequired...)
	c.SelectionForbidden = append(c.SelectionForbidden, other.SelectionForbidden...)
	c.ArgumentUnknown = append(c.ArgumentUnknown, other.ArgumentUnknown...)
	c.ArgumentRequired = append(c.ArgumentRequired, other.ArgumentRequired...)
	c.UnknownType = append(c.UnknownType, other.UnknownType...)
	c.OperationUnsupported = append(c.OperationUnsupported, other.OperationUnsupported...)
	c.Recognized = append(c.Recognized, other.Recognized...)
	c.Ignore = append(c.Ignore, other.Ignore...)
	return c
}

// LoadPatterns reads a YAML pattern file and merges it over the defaults.
func LoadPatterns(path string) (PatternConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PatternConfig{}, errors.Wrap(err, "reading pattern file")
	}
	extra := PatternConfig{}
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return PatternConfig{}, errors.Wrap(err, "parsing pattern file")
	}
	return DefaultPatterns().Merge(extra), nil
}

type capturePattern struct {
	re *regexp.Regexp
}

func (p capturePattern) match(msg string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(msg)
	if m == nil {
		return nil, false
	}
	captures := map[string]string{}
	for i, name := range p.re.SubexpNames() {
		if name != "" && i < len(m) {
			captures[name] = m[i]
		}
	}
	return captures, true
}

type patternTable struct {
	fieldUnknown         []capturePattern
	suggestion           []capturePattern
	selectionRequired    []capturePattern
	selectionForbidden   []capturePattern
	argumentUnknown      []capturePattern
	argumentRequired     []capturePattern
	unknownType          []capturePattern
	operationUnsupported []capturePattern
	recognized           []glob.Glob
	ignore               []glob.Glob
}

var quotedWord = regexp.MustCompile(`["'](\w+)["']`)

func compilePatterns(cfg PatternConfig) (*patternTable, error) {
	t := &patternTable{}
	var err error
	if t.fieldUnknown, err = compileRegexps(cfg.FieldUnknown); err != nil {
		return nil, err
	}
	if t.suggestion, err = compileRegexps(cfg.Suggestion); err != nil {
		return nil, err
	}
	if t.selectionRequired, err = compileRegexps(cfg.SelectionRequired); err != nil {
		return nil, err
	}
	if t.selectionForbidden, err = compileRegexps(cfg.SelectionForbidden); err != nil {
		return nil, err
	}
	if t.argumentUnknown, err = compileRegexps(cfg.ArgumentUnknown); err != nil {
		return nil, err
	}
	if t.argumentRequired, err = compileRegexps(cfg.ArgumentRequired); err != nil {
		return nil, err
	}
	if t.unknownType, err = compileRegexps(cfg.UnknownType); err != nil {
		return nil, err
	}
	if t.operationUnsupported, err = compileRegexps(cfg.OperationUnsupported); err != nil {
		return nil, err
	}
	if t.recognized, err = compileGlobs(cfg.Recognized); err != nil {
		return nil, err
	}
	if t.ignore, err = compileGlobs(cfg.Ignore); err != nil {
		return nil, err
	}
	return t, nil
}

func compileRegexps(patterns []string) ([]capturePattern, error) {
	compiled := make([]capturePattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", p)
		}
		compiled = append(compiled, capturePattern{re: re})
	}
	return compiled, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", p)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

func matchAny(patterns []capturePattern, msg string) (map[string]string, bool) {
	for _, p := range patterns {
		if captures, ok := p.match(msg); ok {
			return captures, true
		}
	}
	return nil, false
}

func matchGlobs(globs []glob.Glob, msg string) bool {
	lower := strings.ToLower(msg)
	for _, g := range globs {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

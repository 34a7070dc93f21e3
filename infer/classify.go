package infer

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/schema"
)

// Outcome is the classifier's verdict about the hypothesis a probe tested.
type Outcome int

const (
	// Ambiguous is the default verdict: the response neither confirmed nor
	// denied anything. Unmatched error wordings land here, never in Rejected.
	Ambiguous Outcome = iota
	Confirmed
	Rejected
	// Suggested means the hypothesis itself was rejected but the server named
	// alternatives that likely exist.
	Suggested
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	case Suggested:
		return "suggested"
	}
	return "ambiguous"
}

// Classification is the verdict plus whatever the response leaked along the
// way: type names, selection constraints, required arguments.
type Classification struct {
	Outcome Outcome
	// Suggestions holds server-volunteered alternative names, closest first.
	Suggestions []string
	// TypeName is the member's type when the error leaked it.
	TypeName string
	// RequiresSelection is set when the error proved the member returns a
	// composite type.
	RequiresSelection bool
	// Ref is the return type derived from a data payload, valid when HasRef.
	Ref    schema.TypeRef
	HasRef bool
	// OnType is the parent type name leaked by an unknown-field error.
	OnType string
	// RequiredArgs lists arguments the server demanded in this response,
	// regardless of which hypothesis was under test.
	RequiredArgs []ArgHint
}

// ArgHint is a required argument leaked by an error message.
type ArgHint struct {
	Name string
	Type string
}

// Classifier turns probe responses into verdicts using a pattern table.
// It is stateless and safe for concurrent use.
type Classifier struct {
	table *patternTable
}

func NewClassifier(cfg PatternConfig) (*Classifier, error) {
	table, err := compilePatterns(cfg)
	if err != nil {
		return nil, err
	}
	return &Classifier{table: table}, nil
}

// DefaultClassifier compiles the built-in pattern table.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return c
}

// ClassifyField interprets the response to a field-existence probe. The
// path names the field chain the probe was nested under, so data payloads
// are read at the right depth.
//
// Evidence is weighed strictly: a data payload or a selection-related error
// confirms; an unknown-field error naming the probed field rejects, or
// suggests when the server volunteered alternatives; a recognized but
// unrelated error (auth, permissions) confirms existence without a type. A
// response matching nothing stays ambiguous.
func (c *Classifier) ClassifyField(result *httpgql.ProbeResult, field string, path ...string) Classification {
	out := Classification{Outcome: Ambiguous}
	if result == nil || result.Malformed() {
		return out
	}

	if value, ok := dataAt(result, path, field); ok {
		out.Outcome = Confirmed
		out.Ref, out.HasRef = refFromValue(value)
		return out
	}

	var suggestions []string
	recognized := false
	for _, msg := range result.ErrorMessages() {
		if matchGlobs(c.table.ignore, msg) {
			continue
		}
		if caps, ok := matchAny(c.table.argumentRequired, msg); ok {
			out.RequiredArgs = append(out.RequiredArgs, ArgHint{Name: caps["arg"], Type: baseTypeName(caps["type"])})
		}
		if caps, ok := matchAny(c.table.selectionRequired, msg); ok && nameMatches(caps["field"], field) {
			out.Outcome = Confirmed
			out.RequiresSelection = true
			out.TypeName = baseTypeName(caps["type"])
			return out
		}
		if caps, ok := matchAny(c.table.selectionForbidden, msg); ok && nameMatches(caps["field"], field) {
			out.Outcome = Confirmed
			out.TypeName = baseTypeName(caps["type"])
			return out
		}
		if caps, ok := matchAny(c.table.fieldUnknown, msg); ok {
			if !nameMatches(caps["field"], field) {
				// The error is about a different field, likely one on the
				// path to the probed type. No verdict from this message.
				continue
			}
			out.OnType = caps["type"]
			if sCaps, ok := matchAny(c.table.suggestion, msg); ok {
				suggestions = append(suggestions, extractNames(sCaps["names"])...)
			}
			if out.Outcome == Ambiguous {
				out.Outcome = Rejected
			}
			continue
		}
		if matchGlobs(c.table.recognized, msg) {
			recognized = true
		}
	}

	if len(suggestions) > 0 {
		out.Outcome = Suggested
		out.Suggestions = RankSuggestions(field, suggestions)
		return out
	}
	if out.Outcome == Rejected {
		return out
	}
	// A required-argument complaint is about the probed field's arguments,
	// which means the field itself resolved.
	if recognized || len(out.RequiredArgs) > 0 {
		out.Outcome = Confirmed
	}
	return out
}

// ClassifyArgument interprets the response to an argument-existence probe,
// a selection of the field with the candidate argument set to null.
func (c *Classifier) ClassifyArgument(result *httpgql.ProbeResult, field, arg string, path ...string) Classification {
	out := Classification{Outcome: Ambiguous}
	if result == nil || result.Malformed() {
		return out
	}

	if _, ok := dataAt(result, path, field); ok {
		// The server executed the field with the argument present.
		out.Outcome = Confirmed
		return out
	}

	var suggestions []string
	for _, msg := range result.ErrorMessages() {
		if matchGlobs(c.table.ignore, msg) {
			continue
		}
		if caps, ok := matchAny(c.table.argumentUnknown, msg); ok && nameMatches(caps["arg"], arg) {
			if sCaps, ok := matchAny(c.table.suggestion, msg); ok {
				suggestions = append(suggestions, extractNames(sCaps["names"])...)
			}
			if out.Outcome == Ambiguous {
				out.Outcome = Rejected
			}
			continue
		}
		if caps, ok := matchAny(c.table.argumentRequired, msg); ok {
			out.RequiredArgs = append(out.RequiredArgs, ArgHint{Name: caps["arg"], Type: baseTypeName(caps["type"])})
			if nameMatches(caps["arg"], arg) {
				out.Outcome = Confirmed
			}
			continue
		}
		// A null literal in a non-nullable position draws a type-expectation
		// complaint that names the argument, which proves it exists.
		if strings.Contains(msg, `"`+arg+`"`) || strings.Contains(msg, "$"+arg) || strings.Contains(msg, "'"+arg+"'") {
			if strings.Contains(strings.ToLower(msg), "expected") || strings.Contains(strings.ToLower(msg), "null") {
				out.Outcome = Confirmed
			}
		}
	}

	if len(suggestions) > 0 {
		out.Outcome = Suggested
		out.Suggestions = RankSuggestions(arg, suggestions)
	}
	return out
}

// LeakedTypes harvests type names the response exposed outside of any
// field verdict: "on type X" and "Unknown type X" wordings.
func (c *Classifier) LeakedTypes(result *httpgql.ProbeResult) []string {
	if result == nil {
		return nil
	}
	var names []string
	for _, msg := range result.ErrorMessages() {
		if caps, ok := matchAny(c.table.fieldUnknown, msg); ok {
			if name := caps["type"]; validName(name) {
				names = append(names, name)
			}
		}
		if caps, ok := matchAny(c.table.selectionRequired, msg); ok {
			if name := baseTypeName(caps["type"]); validName(name) {
				names = append(names, name)
			}
		}
	}
	return dedupe(names)
}

// OperationUnsupported reports whether the response said the operation kind
// is absent from the schema altogether.
func (c *Classifier) OperationUnsupported(result *httpgql.ProbeResult) bool {
	if result == nil {
		return false
	}
	for _, msg := range result.ErrorMessages() {
		if _, ok := matchAny(c.table.operationUnsupported, msg); ok {
			return true
		}
	}
	return false
}

// RankSuggestions dedupes, validates and orders candidate names by edit
// distance from the probe that provoked them, closest first. Order is
// deterministic: ties break alphabetically.
func RankSuggestions(target string, names []string) []string {
	names = dedupe(names)
	valid := names[:0]
	for _, name := range names {
		if validName(name) {
			valid = append(valid, name)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		di := levenshtein.ComputeDistance(target, valid[i])
		dj := levenshtein.ComputeDistance(target, valid[j])
		if di != dj {
			return di < dj
		}
		return valid[i] < valid[j]
	})
	return valid
}

// extractNames pulls quoted identifiers out of a "did you mean" clause.
// graphql-js quotes each candidate; when nothing is quoted the clause is
// split on commas and "or".
func extractNames(clause string) []string {
	if m := quotedWord.FindAllStringSubmatch(clause, -1); len(m) > 0 {
		names := make([]string, 0, len(m))
		for _, g := range m {
			names = append(names, g[1])
		}
		return names
	}
	parts := regexp.MustCompile(`,| or `).Split(clause, -1)
	var names []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "?"))
		if validName(p) {
			names = append(names, p)
		}
	}
	return names
}

var namePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

func validName(name string) bool {
	return namePattern.MatchString(name)
}

// baseTypeName strips list and non-null wrappers off a leaked type name.
func baseTypeName(name string) string {
	return strings.Trim(name, "[]!")
}

// refFromValue derives a return type from a JSON value in the data payload.
// A null value proves existence but not the type.
func refFromValue(value json.RawMessage) (schema.TypeRef, bool) {
	var v interface{}
	if err := json.Unmarshal(value, &v); err != nil {
		return schema.TypeRef{}, false
	}
	ref := schema.TypeRef{}
	for {
		list, ok := v.([]interface{})
		if !ok {
			break
		}
		ref.ListDepth++
		if len(list) == 0 {
			ref.Unresolved = true
			return ref, true
		}
		v = list[0]
	}
	switch t := v.(type) {
	case nil:
		ref.Unresolved = true
	case string:
		ref.Name = "String"
	case bool:
		ref.Name = "Boolean"
	case float64:
		if t == float64(int64(t)) {
			ref.Name = "Int"
		} else {
			ref.Name = "Float"
		}
	default:
		// An object came back without a selection set; the server is
		// non-conforming. Existence is proven, the type is not.
		ref.Unresolved = true
	}
	return ref, true
}

func nameMatches(captured, probed string) bool {
	return captured == probed
}

// dataAt descends the data payload along path and returns the value under
// field. List values along the path are entered at their first element.
func dataAt(result *httpgql.ProbeResult, path []string, field string) (json.RawMessage, bool) {
	steps := append(append([]string{}, path...), field)
	raw, ok := result.DataField(steps[0])
	if !ok {
		return nil, false
	}
	for _, step := range steps[1:] {
		obj := map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			var arr []json.RawMessage
			if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
				return nil, false
			}
			if err := json.Unmarshal(arr[0], &obj); err != nil {
				return nil, false
			}
		}
		if raw, ok = obj[step]; !ok {
			return nil, false
		}
	}
	return raw, true
}

func dedupe(names []string) []string {
	seen := map[string]bool{}
	out := names[:0]
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

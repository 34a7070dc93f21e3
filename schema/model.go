// Package schema holds the type graph accumulated by introspection import
// and blind inference, plus its serializations. Types are kept in an arena
// keyed by name and reference each other by name only, so cyclic schemas
// never produce cyclic Go structures.
package schema

import (
	"sort"
	"sync"

	"github.com/giuseppesec/gqlmap/qerrors"
)

type Kind string

const (
	Object      Kind = "OBJECT"
	Interface   Kind = "INTERFACE"
	Union       Kind = "UNION"
	Enum        Kind = "ENUM"
	InputObject Kind = "INPUT_OBJECT"
	Scalar      Kind = "SCALAR"
	// Unresolved marks a type we know exists but whose kind is still
	// undetermined. It may be promoted to any concrete kind, but a concrete
	// kind is never overwritten by another.
	Unresolved Kind = "UNRESOLVED"
)

type Provenance string

const (
	Introspected Provenance = "INTROSPECTED"
	Inferred     Provenance = "INFERRED"
)

// Confidence is an ordered qualitative signal, not a number: a fact seen
// only in a suggestion ranks below one confirmed by a direct probe, which
// ranks below one corroborated by several independent probes. Introspected
// facts are authoritative.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceSuggested
	ConfidenceDirect
	ConfidenceCorroborated
	ConfidenceAuthoritative
)

var confidenceNames = map[Confidence]string{
	ConfidenceNone:          "none",
	ConfidenceSuggested:     "suggested",
	ConfidenceDirect:        "direct",
	ConfidenceCorroborated:  "corroborated",
	ConfidenceAuthoritative: "authoritative",
}

func (c Confidence) String() string {
	if s, ok := confidenceNames[c]; ok {
		return s
	}
	return "none"
}

type OperationType string

const (
	Query        OperationType = "query"
	Mutation     OperationType = "mutation"
	Subscription OperationType = "subscription"
)

// TypeRef names a type together with its wrappers. List nesting is kept as a
// depth instead of a recursive structure.
type TypeRef struct {
	Name      string `json:"name,omitempty"`
	NonNull   bool   `json:"nonNull,omitempty"`
	ListDepth int    `json:"listDepth,omitempty"`
	// Unresolved marks a reference whose base type could not be determined,
	// e.g. a field that only ever returned null.
	Unresolved bool `json:"unresolved,omitempty"`
}

var builtinScalars = map[string]bool{
	"String":  true,
	"Int":     true,
	"Float":   true,
	"Boolean": true,
	"ID":      true,
}

func IsBuiltinScalar(name string) bool {
	return builtinScalars[name]
}

// BuiltinScalars returns the five spec-defined scalar names, sorted.
func BuiltinScalars() []string {
	names := make([]string, 0, len(builtinScalars))
	for name := range builtinScalars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type ArgumentDef struct {
	Name string  `json:"name"`
	Type TypeRef `json:"type"`
	// Required is only trusted once a "missing required argument" class
	// error demonstrated it; inferred arguments default to false.
	Required bool `json:"required,omitempty"`
}

type FieldDef struct {
	Name string `json:"name"`
	// Arguments keeps discovery order; names are unique.
	Arguments  []*ArgumentDef `json:"arguments,omitempty"`
	Type       TypeRef        `json:"returnType"`
	Provenance Provenance     `json:"provenance"`
	Confidence Confidence     `json:"confidence,omitempty"`
}

func (f *FieldDef) Argument(name string) *ArgumentDef {
	for _, arg := range f.Arguments {
		if arg.Name == name {
			return arg
		}
	}
	return nil
}

type TypeDef struct {
	Name          string               `json:"name"`
	Kind          Kind                 `json:"kind"`
	Fields        map[string]*FieldDef `json:"fields,omitempty"`
	EnumValues    []string             `json:"enumValues,omitempty"`
	PossibleTypes []string             `json:"possibleTypes,omitempty"`
	InputFields   []*ArgumentDef       `json:"inputFields,omitempty"`
	// Conflicts records contradictory evidence seen for this type. The model
	// never silently overwrites; it keeps the stricter reading and remembers
	// the disagreement here.
	Conflicts []string `json:"conflicts,omitempty"`

	mu sync.Mutex
}

// FieldNames returns the type's field names sorted, for deterministic output.
func (t *TypeDef) FieldNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model is the shared mutable type graph. All mutation funnels through the
// Upsert*/MarkVisited operations, each idempotent so that concurrent probes
// confirming the same fact twice leave the model unchanged. Synchronization
// is per type: workers on unrelated types never contend beyond the map
// lookup.
type Model struct {
	mu        sync.RWMutex
	types     map[string]*TypeDef
	roots     map[OperationType]string
	visited   map[string]bool
	partial   bool
	finalized bool
}

func NewModel() *Model {
	return &Model{
		types:   map[string]*TypeDef{},
		roots:   map[OperationType]string{},
		visited: map[string]bool{},
	}
}

// UpsertType returns the TypeDef for name, creating it with the given kind
// if absent. An Unresolved kind is promoted to a concrete one; two different
// concrete kinds are a conflict, recorded, first one wins.
//
// TypeDef.Kind is guarded by the model lock, Fields and Conflicts by the
// per-type lock. Keeping kind reads on the model lock lets a worker holding
// a type's lock look up another type's kind (or its own) without deadlock.
func (m *Model) UpsertType(name string, kind Kind) *TypeDef {
	m.mu.Lock()
	td, ok := m.types[name]
	if !ok {
		if m.finalized {
			m.mu.Unlock()
			return &TypeDef{Name: name, Kind: kind}
		}
		td = &TypeDef{Name: name, Kind: kind, Fields: map[string]*FieldDef{}}
		m.types[name] = td
		m.mu.Unlock()
		return td
	}
	var conflict *qerrors.ConflictError
	switch {
	case td.Kind == kind || kind == Unresolved:
	case td.Kind == Unresolved:
		td.Kind = kind
	default:
		conflict = qerrors.Conflict(name, "kind %s contradicts established kind %s", kind, td.Kind)
	}
	m.mu.Unlock()

	if conflict != nil {
		td.mu.Lock()
		td.Conflicts = appendUnique(td.Conflicts, conflict.Detail)
		td.mu.Unlock()
	}
	return td
}

// Kind returns the type's kind under the model lock.
func (m *Model) Kind(name string) (Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, ok := m.types[name]
	if !ok {
		return Unresolved, false
	}
	return td.Kind, true
}

// UpsertField records that typeName has a field. Applying the same confirmed
// fact again only raises confidence toward corroborated; a disagreeing
// return type keeps the selection-required (object) reading at lowered
// confidence and records the conflict.
func (m *Model) UpsertField(typeName, fieldName string, ref TypeRef, prov Provenance, conf Confidence) *FieldDef {
	td := m.UpsertType(typeName, Unresolved)
	td.mu.Lock()
	defer td.mu.Unlock()

	if m.isFinalized() {
		return td.Fields[fieldName]
	}

	field, ok := td.Fields[fieldName]
	if !ok {
		field = &FieldDef{
			Name:       fieldName,
			Type:       ref,
			Provenance: prov,
			Confidence: conf,
		}
		if td.Fields == nil {
			td.Fields = map[string]*FieldDef{}
		}
		td.Fields[fieldName] = field
		return field
	}

	// Introspected facts are never downgraded by inference.
	if field.Provenance == Introspected && prov == Inferred {
		return field
	}

	if sameRef(field.Type, ref) || ref.Unresolved {
		if conf > field.Confidence {
			field.Confidence = conf
		} else if conf == field.Confidence && conf == ConfidenceDirect {
			// An independent probe agreeing with what we had corroborates it.
			field.Confidence = ConfidenceCorroborated
		}
		return field
	}

	if field.Type.Unresolved {
		field.Type = ref
		if conf > field.Confidence {
			field.Confidence = conf
		}
		return field
	}

	// Contradictory return types. The selection-required (object-like)
	// reading is the stricter contract and wins; the loser is remembered.
	conflict := qerrors.Conflict(typeName, "field %s seen as both %s and %s", fieldName, refString(field.Type), refString(ref))
	td.Conflicts = appendUnique(td.Conflicts, conflict.Detail)
	if m.objectLike(ref.Name) && !m.objectLike(field.Type.Name) {
		field.Type = ref
	}
	field.Confidence = ConfidenceSuggested
	return field
}

// UpsertArgument records an argument on an established field. Required-ness
// only ever ratchets up: once demonstrated it is not forgotten.
func (m *Model) UpsertArgument(typeName, fieldName, argName string, ref TypeRef, required bool) *ArgumentDef {
	td := m.UpsertType(typeName, Unresolved)
	td.mu.Lock()
	defer td.mu.Unlock()

	field, ok := td.Fields[fieldName]
	if !ok || m.isFinalized() {
		return nil
	}
	if arg := field.Argument(argName); arg != nil {
		if required {
			arg.Required = true
		}
		if arg.Type.Unresolved && !ref.Unresolved {
			arg.Type = ref
		}
		return arg
	}
	arg := &ArgumentDef{Name: argName, Type: ref, Required: required}
	field.Arguments = append(field.Arguments, arg)
	return arg
}

func (m *Model) SetRoot(op OperationType, typeName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return
	}
	m.roots[op] = typeName
}

func (m *Model) Root(op OperationType) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.roots[op]
	return name, ok
}

func (m *Model) MarkVisited(typeName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visited[typeName] = true
}

func (m *Model) Visited(typeName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visited[typeName]
}

func (m *Model) Get(name string) *TypeDef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[name]
}

func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.types)
}

// TypeNames returns all type names sorted.
func (m *Model) TypeNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.types))
	for name := range m.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarkPartial flags that the model was finalized by budget or interruption
// rather than by an emptied frontier.
func (m *Model) MarkPartial() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partial = true
}

func (m *Model) Partial() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.partial
}

// Finalize freezes the model. Later upserts from abandoned in-flight probes
// become no-ops; whatever was confirmed before this point stays usable.
func (m *Model) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
}

func (m *Model) isFinalized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finalized
}

// objectLike reports whether a type name refers to something that demands a
// selection set.
func (m *Model) objectLike(name string) bool {
	if name == "" || IsBuiltinScalar(name) {
		return false
	}
	kind, ok := m.Kind(name)
	if !ok {
		// Unknown named type: a named non-scalar reference is the stricter
		// reading.
		return true
	}
	switch kind {
	case Scalar, Enum:
		return false
	}
	return true
}

func sameRef(a, b TypeRef) bool {
	return a.Name == b.Name && a.NonNull == b.NonNull && a.ListDepth == b.ListDepth && a.Unresolved == b.Unresolved
}

func refString(r TypeRef) string {
	if r.Unresolved {
		return "<unresolved>"
	}
	s := r.Name
	for i := 0; i < r.ListDepth; i++ {
		s = "[" + s + "]"
	}
	if r.NonNull {
		s += "!"
	}
	return s
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

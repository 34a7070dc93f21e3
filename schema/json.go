package schema

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Document is the canonical on-disk shape of a finished model: the type
// arena plus the root type names. It is what the exporters and the scan
// engine consume.
type Document struct {
	QueryType        string              `json:"queryType,omitempty"`
	MutationType     string              `json:"mutationType,omitempty"`
	SubscriptionType string              `json:"subscriptionType,omitempty"`
	Types            map[string]*TypeDef `json:"types"`
	Partial          bool                `json:"partial,omitempty"`
}

// Doc snapshots the model into its canonical document form. Call after
// Finalize; the snapshot shares TypeDef pointers with the model.
func (m *Model) Doc() *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc := &Document{
		QueryType:        m.roots[Query],
		MutationType:     m.roots[Mutation],
		SubscriptionType: m.roots[Subscription],
		Types:            map[string]*TypeDef{},
		Partial:          m.partial,
	}
	for name, td := range m.types {
		doc.Types[name] = td
	}
	return doc
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Doc())
}

// FromDocument rebuilds a model from its canonical document form.
func FromDocument(doc *Document) *Model {
	m := NewModel()
	if doc.QueryType != "" {
		m.roots[Query] = doc.QueryType
	}
	if doc.MutationType != "" {
		m.roots[Mutation] = doc.MutationType
	}
	if doc.SubscriptionType != "" {
		m.roots[Subscription] = doc.SubscriptionType
	}
	for name, td := range doc.Types {
		if td.Name == "" {
			td.Name = name
		}
		if td.Fields == nil {
			td.Fields = map[string]*FieldDef{}
		}
		m.types[name] = td
	}
	m.partial = doc.Partial
	return m
}

// Load parses a schema file in either the canonical document shape or raw
// introspection JSON (with or without the {"data": ...} envelope), so the
// exporters accept the output of both `introspect` and `infer`.
func Load(raw []byte) (*Model, error) {
	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err == nil && len(doc.Types) > 0 {
		return FromDocument(&doc), nil
	}
	model, err := ImportIntrospection(raw)
	if err != nil {
		return nil, errors.Wrap(err, "schema file is neither a canonical document nor introspection JSON")
	}
	return model, nil
}

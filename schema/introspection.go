package schema

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// IntrospectionQuery is the full introspection document sent by the
// introspect command and by the introspection security check.
const IntrospectionQuery = `
 query {
   __schema {
     queryType { name }
     mutationType { name }
     subscriptionType { name }
     types {
       ...FullType
     }
     directives {
       name
       description
       locations
       args {
         ...InputValue
       }
     }
   }
 }
 fragment FullType on __Type {
   kind
   name
   description
   fields(includeDeprecated: true) {
     name
     description
     args {
       ...InputValue
     }
     type {
       ...TypeRef
     }
     isDeprecated
     deprecationReason
   }
   inputFields {
     ...InputValue
   }
   interfaces {
     ...TypeRef
   }
   enumValues(includeDeprecated: true) {
     name
     description
     isDeprecated
     deprecationReason
   }
   possibleTypes {
     ...TypeRef
   }
 }
 fragment InputValue on __InputValue {
   name
   description
   type { ...TypeRef }
   defaultValue
 }
 fragment TypeRef on __Type {
   kind
   name
   ofType {
     kind
     name
     ofType {
       kind
       name
       ofType {
         kind
         name
         ofType {
           kind
           name
           ofType {
             kind
             name
             ofType {
               kind
               name
               ofType {
                 kind
                 name
               }
             }
           }
         }
       }
     }
   }
 }
`

// Wire shapes of an introspection response.

type introspectionEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type introspectionDocument struct {
	Schema introspectionSchema `json:"__schema"`
}

type introspectionSchema struct {
	QueryType        *introspectionTypeName `json:"queryType"`
	MutationType     *introspectionTypeName `json:"mutationType"`
	SubscriptionType *introspectionTypeName `json:"subscriptionType"`
	Types            []introspectionType    `json:"types"`
}

type introspectionTypeName struct {
	Name string `json:"name"`
}

type introspectionType struct {
	Kind          string                   `json:"kind"`
	Name          string                   `json:"name"`
	Fields        []introspectionField     `json:"fields"`
	InputFields   []introspectionInput     `json:"inputFields"`
	EnumValues    []introspectionEnumValue `json:"enumValues"`
	PossibleTypes []introspectionTypeRef   `json:"possibleTypes"`
}

type introspectionField struct {
	Name string               `json:"name"`
	Args []introspectionInput `json:"args"`
	Type introspectionTypeRef `json:"type"`
}

type introspectionInput struct {
	Name string               `json:"name"`
	Type introspectionTypeRef `json:"type"`
}

type introspectionEnumValue struct {
	Name string `json:"name"`
}

type introspectionTypeRef struct {
	Kind   string                `json:"kind"`
	Name   string                `json:"name"`
	OfType *introspectionTypeRef `json:"ofType"`
}

// flatten unwraps NON_NULL/LIST wrappers into a TypeRef.
func (r introspectionTypeRef) flatten() TypeRef {
	ref := TypeRef{}
	cur := &r
	if cur.Kind == "NON_NULL" {
		ref.NonNull = true
		cur = cur.OfType
	}
	for cur != nil {
		switch cur.Kind {
		case "LIST":
			ref.ListDepth++
			cur = cur.OfType
			// Inner non-null wrappers are dropped; the model tracks
			// nullability of the outermost wrapper only.
			if cur != nil && cur.Kind == "NON_NULL" {
				cur = cur.OfType
			}
		default:
			ref.Name = cur.Name
			cur = nil
		}
	}
	if ref.Name == "" {
		ref.Unresolved = true
	}
	return ref
}

// ImportIntrospection translates a full introspection response into a Model.
// Every fact it produces is INTROSPECTED at authoritative confidence. The
// input may carry the {"data": ...} envelope or be the bare document.
func ImportIntrospection(raw []byte) (*Model, error) {
	doc := introspectionDocument{}

	envelope := introspectionEnvelope{}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing introspection response")
	}
	if len(doc.Schema.Types) == 0 {
		return nil, errors.New("introspection response contains no types")
	}

	m := NewModel()
	if doc.Schema.QueryType != nil && doc.Schema.QueryType.Name != "" {
		m.SetRoot(Query, doc.Schema.QueryType.Name)
	}
	if doc.Schema.MutationType != nil && doc.Schema.MutationType.Name != "" {
		m.SetRoot(Mutation, doc.Schema.MutationType.Name)
	}
	if doc.Schema.SubscriptionType != nil && doc.Schema.SubscriptionType.Name != "" {
		m.SetRoot(Subscription, doc.Schema.SubscriptionType.Name)
	}

	for _, t := range doc.Schema.Types {
		if t.Name == "" || strings.HasPrefix(t.Name, "__") {
			continue
		}
		td := m.UpsertType(t.Name, Kind(t.Kind))
		for _, f := range t.Fields {
			if f.Name == "" {
				continue
			}
			m.UpsertField(t.Name, f.Name, f.Type.flatten(), Introspected, ConfidenceAuthoritative)
			for _, arg := range f.Args {
				if arg.Name == "" {
					continue
				}
				m.UpsertArgument(t.Name, f.Name, arg.Name, arg.Type.flatten(), arg.Type.Kind == "NON_NULL")
			}
		}
		for _, in := range t.InputFields {
			td.InputFields = append(td.InputFields, &ArgumentDef{
				Name:     in.Name,
				Type:     in.Type.flatten(),
				Required: in.Type.Kind == "NON_NULL",
			})
		}
		for _, ev := range t.EnumValues {
			td.EnumValues = append(td.EnumValues, ev.Name)
		}
		for _, pt := range t.PossibleTypes {
			if name := pt.flatten().Name; name != "" {
				td.PossibleTypes = append(td.PossibleTypes, name)
			}
		}
		m.MarkVisited(t.Name)
	}
	return m, nil
}

// ToIntrospection renders the model in the introspection response shape
// (with the data envelope), which downstream GraphQL tooling understands.
func (m *Model) ToIntrospection() ([]byte, error) {
	schemaDoc := map[string]interface{}{}

	if name, ok := m.Root(Query); ok {
		schemaDoc["queryType"] = map[string]string{"name": name}
	}
	if name, ok := m.Root(Mutation); ok {
		schemaDoc["mutationType"] = map[string]string{"name": name}
	}
	if name, ok := m.Root(Subscription); ok {
		schemaDoc["subscriptionType"] = map[string]string{"name": name}
	}

	types := []map[string]interface{}{}
	for _, name := range BuiltinScalars() {
		types = append(types, map[string]interface{}{
			"kind": "SCALAR", "name": name,
			"fields": nil, "inputFields": nil, "interfaces": []interface{}{},
			"enumValues": nil, "possibleTypes": nil,
		})
	}
	for _, name := range m.TypeNames() {
		td := m.Get(name)
		types = append(types, introspectionTypeJSON(td))
	}
	schemaDoc["types"] = types
	schemaDoc["directives"] = []interface{}{}

	return json.MarshalIndent(map[string]interface{}{
		"data": map[string]interface{}{"__schema": schemaDoc},
	}, "", "  ")
}

func introspectionTypeJSON(td *TypeDef) map[string]interface{} {
	kind := td.Kind
	if kind == Unresolved {
		// Unknown kinds degrade to OBJECT, the most common case for types
		// discovered through selection-required errors.
		kind = Object
	}

	var fields interface{}
	if len(td.Fields) > 0 {
		list := []map[string]interface{}{}
		for _, fieldName := range td.FieldNames() {
			f := td.Fields[fieldName]
			args := []map[string]interface{}{}
			for _, arg := range f.Arguments {
				args = append(args, map[string]interface{}{
					"name":         arg.Name,
					"type":         introspectionRefJSON(arg.Type, arg.Required),
					"defaultValue": nil,
				})
			}
			list = append(list, map[string]interface{}{
				"name":              f.Name,
				"args":              args,
				"type":              introspectionRefJSON(f.Type, f.Type.NonNull),
				"isDeprecated":      false,
				"deprecationReason": nil,
			})
		}
		fields = list
	}

	var enumValues interface{}
	if len(td.EnumValues) > 0 {
		list := []map[string]interface{}{}
		for _, v := range td.EnumValues {
			list = append(list, map[string]interface{}{"name": v, "isDeprecated": false})
		}
		enumValues = list
	}

	var possibleTypes interface{}
	if len(td.PossibleTypes) > 0 {
		list := []map[string]interface{}{}
		for _, pt := range td.PossibleTypes {
			list = append(list, map[string]interface{}{"kind": "OBJECT", "name": pt, "ofType": nil})
		}
		possibleTypes = list
	}

	var inputFields interface{}
	if len(td.InputFields) > 0 {
		list := []map[string]interface{}{}
		for _, in := range td.InputFields {
			list = append(list, map[string]interface{}{
				"name": in.Name, "type": introspectionRefJSON(in.Type, in.Required), "defaultValue": nil,
			})
		}
		inputFields = list
	}

	return map[string]interface{}{
		"kind":          string(kind),
		"name":          td.Name,
		"fields":        fields,
		"inputFields":   inputFields,
		"interfaces":    []interface{}{},
		"enumValues":    enumValues,
		"possibleTypes": possibleTypes,
	}
}

func introspectionRefJSON(ref TypeRef, nonNull bool) map[string]interface{} {
	name := ref.Name
	if name == "" {
		name = "String"
	}
	kind := "OBJECT"
	if IsBuiltinScalar(name) {
		kind = "SCALAR"
	}
	inner := map[string]interface{}{"kind": kind, "name": name, "ofType": nil}
	for i := 0; i < ref.ListDepth; i++ {
		inner = map[string]interface{}{"kind": "LIST", "name": nil, "ofType": inner}
	}
	if nonNull {
		inner = map[string]interface{}{"kind": "NON_NULL", "name": nil, "ofType": inner}
	}
	return inner
}

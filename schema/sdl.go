package schema

import (
	"io"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// WriteSDL renders the model as a GraphQL SDL document. Inferred models are
// frequently partial: types whose fields were never discovered (unresolved
// kinds, empty objects) are emitted as custom scalar declarations so the
// document stays parseable.
func (m *Model) WriteSDL(w io.Writer) error {
	out := &ast.Schema{
		Types: map[string]*ast.Definition{},
	}

	for _, name := range m.TypeNames() {
		td := m.Get(name)
		def := definitionFor(td)
		out.Types[name] = def
	}

	if name, ok := m.Root(Query); ok {
		out.Query = out.Types[name]
	}
	if name, ok := m.Root(Mutation); ok {
		out.Mutation = out.Types[name]
	}
	if name, ok := m.Root(Subscription); ok {
		out.Subscription = out.Types[name]
	}

	formatter.NewFormatter(w).FormatSchema(out)
	return nil
}

func definitionFor(td *TypeDef) *ast.Definition {
	def := &ast.Definition{Name: td.Name}

	switch td.Kind {
	case Enum:
		def.Kind = ast.Enum
		for _, v := range td.EnumValues {
			def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{Name: v})
		}
		return def
	case Union:
		def.Kind = ast.Union
		def.Types = append(def.Types, td.PossibleTypes...)
		return def
	case InputObject:
		def.Kind = ast.InputObject
		for _, in := range td.InputFields {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name: in.Name,
				Type: astType(in.Type, in.Required),
			})
		}
		return def
	case Scalar:
		def.Kind = ast.Scalar
		return def
	}

	fieldNames := td.FieldNames()
	if len(fieldNames) == 0 {
		def.Kind = ast.Scalar
		def.Description = "Discovered type; fields not yet resolved."
		return def
	}

	if td.Kind == Interface {
		def.Kind = ast.Interface
	} else {
		def.Kind = ast.Object
	}
	for _, fieldName := range fieldNames {
		f := td.Fields[fieldName]
		fd := &ast.FieldDefinition{
			Name: f.Name,
			Type: astType(f.Type, f.Type.NonNull),
		}
		args := append([]*ArgumentDef{}, f.Arguments...)
		sort.Slice(args, func(i, j int) bool { return args[i].Name < args[j].Name })
		for _, arg := range args {
			fd.Arguments = append(fd.Arguments, &ast.ArgumentDefinition{
				Name: arg.Name,
				Type: astType(arg.Type, arg.Required),
			})
		}
		def.Fields = append(def.Fields, fd)
	}
	return def
}

func astType(ref TypeRef, nonNull bool) *ast.Type {
	name := ref.Name
	if name == "" {
		name = "String"
	}
	t := &ast.Type{NamedType: name}
	for i := 0; i < ref.ListDepth; i++ {
		t = &ast.Type{Elem: t}
	}
	t.NonNull = nonNull
	return t
}

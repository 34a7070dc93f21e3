// Package export renders a schema model into ready-to-run request
// collections: curl scripts, Bruno and Postman collections, and the
// queries/mutations layout Burp's InQL understands. Models are frequently
// partial; operations over half-known types still come out runnable, with
// __typename standing in where no field is known.
package export

import (
	"sort"
	"strings"

	"github.com/giuseppesec/gqlmap/schema"
)

// Stats counts what an exporter wrote.
type Stats struct {
	Queries   int
	Mutations int
}

// operation is one exportable root field.
type operation struct {
	Op    schema.OperationType
	Field *schema.FieldDef
}

// builder renders selections, argument literals and type strings against one
// model. Selection depth is capped and cycles are cut, so any schema shape
// renders.
type builder struct {
	model *schema.Model
}

const (
	maxSelectionDepth = 2
	maxSelectionWidth = 10
	maxArgDepth       = 3
)

// operations lists the root fields of one operation kind, sorted by name.
func (b *builder) operations(op schema.OperationType) []operation {
	rootName, ok := b.model.Root(op)
	if !ok {
		return nil
	}
	root := b.model.Get(rootName)
	if root == nil {
		return nil
	}
	var ops []operation
	for _, name := range root.FieldNames() {
		if strings.HasPrefix(name, "__") {
			continue
		}
		ops = append(ops, operation{Op: op, Field: root.Fields[name]})
	}
	return ops
}

// render builds the full operation text for one root field, with arguments
// inlined as literals.
func (b *builder) render(op operation) string {
	sb := strings.Builder{}
	sb.WriteString(string(op.Op))
	sb.WriteString(" {\n  ")
	sb.WriteString(op.Field.Name)
	sb.WriteString(b.argLiterals(op.Field.Arguments))
	if selection := b.selection(op.Field.Type, 0, map[string]bool{}); selection != "" {
		sb.WriteString(" ")
		sb.WriteString(selection)
	}
	sb.WriteString("\n}")
	return sb.String()
}

// renderWithVariables builds the operation text using variable references,
// plus the matching variable definitions and example values.
func (b *builder) renderWithVariables(op operation) (query string, variables map[string]string) {
	args := sortedArgs(op.Field.Arguments)
	sb := strings.Builder{}
	sb.WriteString(string(op.Op))
	if len(args) > 0 {
		defs := make([]string, 0, len(args))
		for _, arg := range args {
			defs = append(defs, "$"+arg.Name+": "+typeString(arg.Type, arg.Required))
		}
		sb.WriteString("(")
		sb.WriteString(strings.Join(defs, ", "))
		sb.WriteString(")")
	}
	sb.WriteString(" {\n  ")
	sb.WriteString(op.Field.Name)
	if len(args) > 0 {
		usages := make([]string, 0, len(args))
		for _, arg := range args {
			usages = append(usages, arg.Name+": $"+arg.Name)
		}
		sb.WriteString("(")
		sb.WriteString(strings.Join(usages, ", "))
		sb.WriteString(")")
	}
	if selection := b.selection(op.Field.Type, 0, map[string]bool{}); selection != "" {
		sb.WriteString(" ")
		sb.WriteString(selection)
	}
	sb.WriteString("\n}")

	variables = map[string]string{}
	for _, arg := range args {
		if literal, ok := b.argValueJSON(arg.Type, 0); ok {
			variables[arg.Name] = literal
		}
	}
	return sb.String(), variables
}

// selection renders a selection set for the type behind ref, empty for
// leaves. Partial models get a __typename selection for object-like types
// whose fields were never discovered, keeping the export runnable.
func (b *builder) selection(ref schema.TypeRef, depth int, visited map[string]bool) string {
	if depth > maxSelectionDepth {
		return ""
	}
	name := ref.Name
	if name == "" || schema.IsBuiltinScalar(name) {
		return ""
	}
	td := b.model.Get(name)
	if td == nil {
		return ""
	}
	switch td.Kind {
	case schema.Scalar, schema.Enum, schema.InputObject:
		return ""
	}
	if visited[name] {
		return ""
	}
	fieldNames := td.FieldNames()
	if len(fieldNames) == 0 {
		if td.Kind == schema.Object || td.Kind == schema.Interface || td.Kind == schema.Union || td.Kind == schema.Unresolved {
			return "{ __typename }"
		}
		return ""
	}

	visited[name] = true
	defer delete(visited, name)

	indent := strings.Repeat("  ", depth+2)
	var lines []string
	for _, fieldName := range fieldNames {
		if strings.HasPrefix(fieldName, "__") {
			continue
		}
		if len(lines) >= maxSelectionWidth {
			break
		}
		field := td.Fields[fieldName]
		line := indent + field.Name
		if sub := b.selection(field.Type, depth+1, visited); sub != "" {
			line += " " + sub
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "{ __typename }"
	}
	return "{\n" + strings.Join(lines, "\n") + "\n" + strings.Repeat("  ", depth+1) + "}"
}

// argLiterals renders an inline argument list with placeholder values,
// empty when no argument has a renderable value.
func (b *builder) argLiterals(args []*schema.ArgumentDef) string {
	var parts []string
	for _, arg := range sortedArgs(args) {
		if value, ok := b.argValue(arg.Type, 0); ok {
			parts = append(parts, arg.Name+": "+value)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// argValue builds a placeholder literal for an argument type: zero values
// for scalars, the first value for enums, a populated object for inputs.
func (b *builder) argValue(ref schema.TypeRef, depth int) (string, bool) {
	if depth > maxArgDepth {
		return "", false
	}
	if ref.ListDepth > 0 {
		inner := ref
		inner.ListDepth = 0
		value, ok := b.argValue(inner, depth+1)
		if !ok {
			return "[]", true
		}
		return "[" + strings.Repeat("[", ref.ListDepth-1) + value + strings.Repeat("]", ref.ListDepth-1) + "]", true
	}
	name := ref.Name
	if name == "" {
		return `""`, true
	}
	switch name {
	case "String", "ID":
		return `""`, true
	case "Int":
		return "0", true
	case "Float":
		return "0.0", true
	case "Boolean":
		return "false", true
	}
	td := b.model.Get(name)
	if td == nil {
		return `""`, true
	}
	switch td.Kind {
	case schema.Enum:
		if len(td.EnumValues) > 0 {
			return td.EnumValues[0], true
		}
		return "", false
	case schema.InputObject:
		var parts []string
		for _, in := range td.InputFields {
			if value, ok := b.argValue(in.Type, depth+1); ok {
				parts = append(parts, in.Name+": "+value)
			}
		}
		return "{ " + strings.Join(parts, ", ") + " }", true
	case schema.Scalar:
		return `""`, true
	}
	return "", false
}

// argValueJSON is argValue in JSON notation, for variable payloads: enum
// values come out quoted and input object keys carry quotes.
func (b *builder) argValueJSON(ref schema.TypeRef, depth int) (string, bool) {
	if depth > maxArgDepth {
		return "", false
	}
	if ref.ListDepth > 0 {
		inner := ref
		inner.ListDepth = 0
		value, ok := b.argValueJSON(inner, depth+1)
		if !ok {
			return "[]", true
		}
		return "[" + value + "]", true
	}
	name := ref.Name
	switch name {
	case "", "String", "ID":
		return `""`, true
	case "Int":
		return "0", true
	case "Float":
		return "0.0", true
	case "Boolean":
		return "false", true
	}
	td := b.model.Get(name)
	if td == nil {
		return `""`, true
	}
	switch td.Kind {
	case schema.Enum:
		if len(td.EnumValues) > 0 {
			return `"` + td.EnumValues[0] + `"`, true
		}
		return "", false
	case schema.InputObject:
		var parts []string
		for _, in := range td.InputFields {
			if value, ok := b.argValueJSON(in.Type, depth+1); ok {
				parts = append(parts, `"`+in.Name+`": `+value)
			}
		}
		return "{ " + strings.Join(parts, ", ") + " }", true
	case schema.Scalar:
		return `""`, true
	}
	return "", false
}

// typeString renders a TypeRef in SDL notation for variable definitions.
func typeString(ref schema.TypeRef, nonNull bool) string {
	name := ref.Name
	if name == "" {
		name = "String"
	}
	for i := 0; i < ref.ListDepth; i++ {
		name = "[" + name + "]"
	}
	if nonNull || ref.NonNull {
		name += "!"
	}
	return name
}

func sortedArgs(args []*schema.ArgumentDef) []*schema.ArgumentDef {
	sorted := append([]*schema.ArgumentDef{}, args...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

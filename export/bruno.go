package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap/schema"
)

// Bruno writes a Bruno collection: bruno.json at the root plus one .bru file
// per operation under queries/ and mutations/.
type Bruno struct {
	Model *schema.Model
	URL   string
}

func (e *Bruno) Export(outputDir string) (*Stats, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}

	name := filepath.Base(outputDir)
	if name == "." || name == string(filepath.Separator) {
		name = "GraphQL"
	}
	manifest := fmt.Sprintf("{\n  \"version\": \"1\",\n  \"name\": %q,\n  \"type\": \"collection\"\n}\n", name)
	if err := os.WriteFile(filepath.Join(outputDir, "bruno.json"), []byte(manifest), 0o644); err != nil {
		return nil, errors.Wrap(err, "writing bruno.json")
	}

	b := &builder{model: e.Model}
	stats := &Stats{}
	var err error
	if stats.Queries, err = e.writeDir(b, schema.Query, filepath.Join(outputDir, "queries")); err != nil {
		return nil, err
	}
	if stats.Mutations, err = e.writeDir(b, schema.Mutation, filepath.Join(outputDir, "mutations")); err != nil {
		return nil, err
	}
	return stats, nil
}

func (e *Bruno) writeDir(b *builder, op schema.OperationType, dir string) (int, error) {
	ops := b.operations(op)
	if len(ops) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "creating collection directory")
	}
	for i, operation := range ops {
		content := e.bruFile(b, operation, i+1)
		path := filepath.Join(dir, operation.Field.Name+".bru")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return 0, errors.Wrapf(err, "writing %s", path)
		}
	}
	return len(ops), nil
}

func (e *Bruno) bruFile(b *builder, op operation, seq int) string {
	query := b.render(op)
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "meta {\n  name: %s\n  type: graphql\n  seq: %d\n}\n\n", op.Field.Name, seq)
	fmt.Fprintf(&sb, "post {\n  url: %s\n  body: graphql\n  auth: inherit\n}\n\n", e.URL)
	sb.WriteString("body:graphql {\n  ")
	sb.WriteString(strings.ReplaceAll(query, "\n", "\n  "))
	sb.WriteString("\n}\n")
	return sb.String()
}

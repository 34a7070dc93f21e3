package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap/schema"
)

// InQL writes the directory layout Burp Suite's InQL extension imports: one
// .graphql file per operation under queries/ and mutations/, plus a
// metadata.txt summary. Operations use variables so arguments are editable
// in place.
type InQL struct {
	Model *schema.Model
	URL   string
}

func (e *InQL) Export(outputDir string) (*Stats, error) {
	stats := &Stats{}
	var err error
	if stats.Queries, err = e.writeDir(schema.Query, filepath.Join(outputDir, "queries")); err != nil {
		return nil, err
	}
	if stats.Mutations, err = e.writeDir(schema.Mutation, filepath.Join(outputDir, "mutations")); err != nil {
		return nil, err
	}

	metadata := fmt.Sprintf("# InQL Export\n# URL: %s\n# Queries: %d\n# Mutations: %d\n",
		e.URL, stats.Queries, stats.Mutations)
	if err := os.WriteFile(filepath.Join(outputDir, "metadata.txt"), []byte(metadata), 0o644); err != nil {
		return nil, errors.Wrap(err, "writing metadata.txt")
	}
	return stats, nil
}

func (e *InQL) writeDir(op schema.OperationType, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "creating output directory")
	}
	b := &builder{model: e.Model}
	ops := b.operations(op)
	for _, operation := range ops {
		content := e.operationFile(b, operation)
		path := filepath.Join(dir, operation.Field.Name+".graphql")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return 0, errors.Wrapf(err, "writing %s", path)
		}
	}
	return len(ops), nil
}

func (e *InQL) operationFile(b *builder, op operation) string {
	query, variables := b.renderWithVariables(op)
	if len(variables) == 0 {
		return query + "\n"
	}
	header := "# Variables:\n"
	for _, arg := range sortedArgs(op.Field.Arguments) {
		value, ok := variables[arg.Name]
		if !ok {
			value = "null"
		}
		header += fmt.Sprintf("#   %s: %s\n", arg.Name, value)
	}
	return header + "\n" + query + "\n"
}

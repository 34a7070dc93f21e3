package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap"
	"github.com/giuseppesec/gqlmap/schema"
)

// Curl writes one shell script per operation kind, a curl invocation per
// operation.
type Curl struct {
	Model *schema.Model
	URL   string
}

func (e *Curl) Export(outputDir string) (*Stats, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}
	b := &builder{model: e.Model}
	stats := &Stats{}

	queries, err := e.script(b, schema.Query)
	if err != nil {
		return nil, err
	}
	if queries != "" {
		if err := os.WriteFile(filepath.Join(outputDir, "queries.sh"), []byte(queries), 0o755); err != nil {
			return nil, errors.Wrap(err, "writing queries.sh")
		}
		stats.Queries = len(b.operations(schema.Query))
	}

	mutations, err := e.script(b, schema.Mutation)
	if err != nil {
		return nil, err
	}
	if mutations != "" {
		if err := os.WriteFile(filepath.Join(outputDir, "mutations.sh"), []byte(mutations), 0o755); err != nil {
			return nil, errors.Wrap(err, "writing mutations.sh")
		}
		stats.Mutations = len(b.operations(schema.Mutation))
	}
	return stats, nil
}

func (e *Curl) script(b *builder, op schema.OperationType) (string, error) {
	ops := b.operations(op)
	if len(ops) == 0 {
		return "", nil
	}
	sb := strings.Builder{}
	sb.WriteString("#!/bin/sh\n# Generated by gqlmap for ")
	sb.WriteString(e.URL)
	sb.WriteString("\n\n")
	for _, operation := range ops {
		body, err := json.Marshal(&gqlmap.Request{Query: b.render(operation)})
		if err != nil {
			return "", errors.Wrapf(err, "marshaling operation %s", operation.Field.Name)
		}
		sb.WriteString("# ")
		sb.WriteString(operation.Field.Name)
		sb.WriteString("\ncurl -s -X POST '")
		sb.WriteString(e.URL)
		sb.WriteString("' -H 'Content-Type: application/json' -d '")
		sb.WriteString(strings.ReplaceAll(string(body), "'", `'\''`))
		sb.WriteString("'\n\n")
	}
	return sb.String(), nil
}
